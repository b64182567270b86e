package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hexidle/internal/game"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccounts struct {
	byName map[string]game.Credentials
}

func (f *fakeAccounts) Register(_ context.Context, playerID, username, hash string) (game.PlayerState, error) {
	name, err := game.NormalizeUsername(username)
	if err != nil {
		return game.PlayerState{}, err
	}
	if _, ok := f.byName[name]; ok {
		return game.PlayerState{}, game.ErrUsernameTaken
	}
	f.byName[name] = game.Credentials{PlayerID: playerID, Username: name, PasswordHash: hash}
	return game.PlayerState{PlayerID: playerID, Username: name}, nil
}

func (f *fakeAccounts) Credentials(_ context.Context, username string) (game.Credentials, error) {
	c, ok := f.byName[username]
	if !ok {
		return game.Credentials{}, game.ErrPlayerNotFound
	}
	return c, nil
}

func newLocal(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(&fakeAccounts{byName: map[string]game.Credentials{}}, "test-secret", time.Hour, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

func TestLocalRegisterLoginVerify(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()

	tok, err := p.Register(ctx, "Alice", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if tok.Username != "alice" || tok.PlayerID == "" || tok.Token == "" {
		t.Fatalf("token %+v", tok)
	}
	id, err := p.Verify(ctx, tok.Token)
	if err != nil || id.PlayerID != tok.PlayerID || id.Username != "alice" {
		t.Fatalf("verify %+v %v", id, err)
	}

	login, err := p.Login(ctx, "alice", "hunter22")
	if err != nil || login.PlayerID != tok.PlayerID {
		t.Fatalf("login %+v %v", login, err)
	}
	if _, err := p.Login(ctx, "alice", "wrong-password"); !errors.Is(err, game.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := p.Login(ctx, "nobody", "hunter22"); !errors.Is(err, game.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if _, err := p.Register(ctx, "alice", "hunter22"); !errors.Is(err, game.ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestLocalRegisterValidation(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()
	if _, err := p.Register(ctx, "al", "hunter22"); !errors.Is(err, game.ErrInvalidUsername) {
		t.Fatalf("expected invalid username, got %v", err)
	}
	if _, err := p.Register(ctx, "alice", "12345"); !errors.Is(err, game.ErrInvalidPassword) {
		t.Fatalf("expected invalid password, got %v", err)
	}
	if _, err := p.Register(ctx, "alice", strings.Repeat("a", 80)); !errors.Is(err, game.ErrInvalidPassword) {
		t.Fatalf("expected long password to be rejected as invalid, got %v", err)
	}
}

func TestLocalVerifyRejects(t *testing.T) {
	p := newLocal(t)
	ctx := context.Background()
	tok, err := p.Issue(Identity{PlayerID: "p1", Username: "alice"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, _ := NewLocalProvider(p.accounts, "other-secret", time.Hour, bcrypt.MinCost)
	if _, err := other.Verify(ctx, tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong-secret rejection, got %v", err)
	}

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := p.Verify(ctx, tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "p1", "iss": tokenIssuer})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := newLocal(t).Verify(ctx, unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none rejection, got %v", err)
	}
}

func TestNewLocalProviderRequiresSecret(t *testing.T) {
	if _, err := NewLocalProvider(&fakeAccounts{}, " ", 0, 0); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestSupabaseVerifyCachesUser(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"bad jwt"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"u@example.com"}`))
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL+"/", "anon")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, err := c.Verify(ctx, "good")
		if err != nil || id.PlayerID != "u-1" || id.Email != "u@example.com" {
			t.Fatalf("verify %+v %v", id, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
	if _, err := c.Verify(ctx, "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
