package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hexidle/internal/game"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	DefaultTokenTTL   = 7 * 24 * time.Hour
	tokenIssuer       = "hexidle"
)

// Accounts is the part of the game service local auth needs.
type Accounts interface {
	Register(ctx context.Context, playerID, username, passwordHash string) (game.PlayerState, error)
	Credentials(ctx context.Context, username string) (game.Credentials, error)
}

// Token is handed to the client after register or login.
type Token struct {
	Token     string    `json:"token"`
	PlayerID  string    `json:"player_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type LocalProvider struct {
	accounts Accounts
	secret   []byte
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

// NewLocalProvider needs a non-empty signing secret. ttl and cost fall back
// to seven days and bcrypt cost 12.
func NewLocalProvider(accounts Accounts, secret string, ttl time.Duration, cost int) (*LocalProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	return &LocalProvider{accounts: accounts, secret: []byte(secret), ttl: ttl, cost: cost, now: time.Now}, nil
}

func (p *LocalProvider) Register(ctx context.Context, username, password string) (Token, error) {
	if _, err := game.NormalizeUsername(username); err != nil {
		return Token{}, err
	}
	if err := game.ValidatePassword(password); err != nil {
		return Token{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return Token{}, game.ErrInvalidPassword
	}
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}
	st, err := p.accounts.Register(ctx, uuid.NewString(), username, string(hash))
	if err != nil {
		return Token{}, err
	}
	return p.Issue(Identity{PlayerID: st.PlayerID, Username: st.Username})
}

// Login never reveals whether the username exists.
func (p *LocalProvider) Login(ctx context.Context, username, password string) (Token, error) {
	creds, err := p.accounts.Credentials(ctx, username)
	if errors.Is(err, game.ErrPlayerNotFound) {
		return Token{}, game.ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if creds.PasswordHash == "" {
		return Token{}, game.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return Token{}, game.ErrInvalidCredentials
	}
	return p.Issue(Identity{PlayerID: creds.PlayerID, Username: creds.Username})
}

func (p *LocalProvider) Issue(id Identity) (Token, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	c := claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Token: signed, PlayerID: id.PlayerID, Username: id.Username, ExpiresAt: exp}, nil
}

func (p *LocalProvider) Verify(_ context.Context, token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{PlayerID: c.Subject, Username: c.Username}, nil
}
