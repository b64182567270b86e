package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hexidle/internal/economy"
	"hexidle/internal/hexgrid"

	"github.com/shopspring/decimal"
)

const (
	MinPasswordLength       = 6
	// MaxPasswordLength is in bytes; bcrypt rejects anything longer.
	MaxPasswordLength       = 72
	DefaultLeaderboardLimit = 20
	DefaultMoveCooldown     = 5 * time.Second
)

// DefaultPrestigeThreshold is the gold balance needed to prestige.
var DefaultPrestigeThreshold = decimal.NewFromInt(10_000)

// DefaultStartRates are the per-second base rates of a new or prestiged player.
var DefaultStartRates = economy.NewResources(0.5, 0.2, 0.1)

var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrTileNotFound       = errors.New("tile not found")
	ErrInvalidUpgrade     = errors.New("invalid upgrade")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters (letters, digits, underscore)")
	ErrInvalidPassword    = fmt.Errorf("password must be %d-%d bytes", MinPasswordLength, MaxPasswordLength)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotEnough          = errors.New("not enough")
	ErrMaxQuantity        = errors.New("max quantity reached")
	ErrPrerequisite       = errors.New("prerequisite not met")
	ErrPrestigeLocked     = errors.New("insufficient gold to prestige")
	ErrMoveCooldown       = errors.New("move cooldown active")
	ErrNotAdjacent        = errors.New("can only move to adjacent tiles")
	ErrImpassable         = errors.New("cannot travel to that tile")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrPlayerExists       = errors.New("player already exists")
	ErrTransient          = errors.New("temporary storage failure, retry")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Kind classifies an error for callers that must decide how to surface it.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindRuleViolation
	KindConflict
	KindTransient
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRuleViolation:
		return "rule_violation"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrPlayerNotFound), errors.Is(err, ErrTileNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidUpgrade), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidPassword):
		return KindValidation
	case errors.Is(err, ErrNotEnough), errors.Is(err, ErrMaxQuantity), errors.Is(err, ErrPrerequisite),
		errors.Is(err, ErrPrestigeLocked), errors.Is(err, ErrMoveCooldown),
		errors.Is(err, ErrNotAdjacent), errors.Is(err, ErrImpassable):
		return KindRuleViolation
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrPlayerExists):
		return KindConflict
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// CooldownError carries the whole seconds left before the next move.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Seconds() int64 {
	secs := int64(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("wait %d seconds before moving again", e.Seconds())
}

func (e *CooldownError) Unwrap() error { return ErrMoveCooldown }

func notEnough(res economy.Resource) error {
	return fmt.Errorf("%w %s", ErrNotEnough, res)
}

func tileNotFound(c hexgrid.Coord) error {
	return fmt.Errorf("%w: %s", ErrTileNotFound, c)
}

var usernameRE = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// NormalizeUsername lowercases and validates a chosen username.
func NormalizeUsername(username string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(username))
	if !usernameRE.MatchString(u) {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(email, "@")
	if len(parts) == 0 || parts[0] == "" {
		return "player"
	}
	return sanitizeUsername(parts[0])
}

func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "player"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "player_" + res
	}
	if len(res) > 32 {
		res = res[:32]
	}
	return res
}
