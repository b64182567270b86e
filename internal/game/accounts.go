package game

import (
	"context"
	"errors"
	"strings"
)

// Register creates a local account with its starting state. The caller
// hashes the password.
func (s *Service) Register(ctx context.Context, playerID, username, passwordHash string) (PlayerState, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return PlayerState{}, err
	}
	if strings.TrimSpace(playerID) == "" || passwordHash == "" {
		return PlayerState{}, ErrInvalidInput
	}
	state := s.NewPlayerState(playerID, name)
	if err := s.store.CreatePlayer(ctx, NewPlayer{
		PlayerID:     playerID,
		Username:     name,
		PasswordHash: passwordHash,
		State:        state,
	}); err != nil {
		return PlayerState{}, err
	}
	s.log.Info("player registered", "player_id", playerID, "username", name)
	return state, nil
}

// Credentials looks up a local account by username.
func (s *Service) Credentials(ctx context.Context, username string) (Credentials, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if name == "" {
		return Credentials{}, ErrInvalidCredentials
	}
	return s.store.Credentials(ctx, name)
}

// EnsurePlayer creates the state row for a player whose identity lives with
// an external provider. It is a no-op when the player already exists. A
// taken username is retried once with a suffix from the player id.
func (s *Service) EnsurePlayer(ctx context.Context, playerID, email, username string) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidInput
	}
	name, err := NormalizeUsername(username)
	if err != nil {
		name = usernameFromEmail(email)
	}

	create := func(name string) error {
		return s.store.CreatePlayer(ctx, NewPlayer{
			PlayerID: playerID,
			Username: name,
			State:    s.NewPlayerState(playerID, name),
		})
	}
	err = create(name)
	if errors.Is(err, ErrUsernameTaken) {
		suffix := strings.ReplaceAll(playerID, "-", "")
		if len(suffix) > 6 {
			suffix = suffix[:6]
		}
		if len(name) > 32-len(suffix)-1 {
			name = name[:32-len(suffix)-1]
		}
		err = create(sanitizeUsername(name + "_" + suffix))
	}
	if errors.Is(err, ErrPlayerExists) {
		return nil
	}
	return err
}
