// Package auth turns bearer tokens into player identities. Two providers
// exist: local accounts (bcrypt + HS256 tokens) and Supabase.
package auth

import (
	"context"
	"errors"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is a verified caller. PlayerID is stable for the lifetime of
// the account.
type Identity struct {
	PlayerID string
	Username string
	Email    string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
