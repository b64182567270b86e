package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SupabaseClient talks to Supabase GoTrue. Verified tokens are remembered
// for a short while so each game request does not cost a round trip.
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cachedUser
	now   func() time.Time
}

type cachedUser struct {
	user    SupabaseUser
	expires time.Time
}

type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	TokenType    string       `json:"token_type"`
	User         SupabaseUser `json:"user"`
}

type SupabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// StatusError is a non-2xx answer from Supabase.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase status %d: %s", e.Status, e.Body)
}

func NewSupabaseClient(baseURL, anonKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		cacheTTL: 30 * time.Second,
		cache:    make(map[string]cachedUser),
		now:      time.Now,
	}
}

func (c *SupabaseClient) SignUp(ctx context.Context, email, password string) (Session, error) {
	var out Session
	if err := c.postJSON(ctx, "/auth/v1/signup", map[string]string{"email": email, "password": password}, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

func (c *SupabaseClient) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	if err := c.postJSON(ctx, "/auth/v1/token?grant_type=password", map[string]string{"email": email, "password": password}, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

// Verify implements Verifier. The Supabase user id becomes the player id.
func (c *SupabaseClient) Verify(ctx context.Context, token string) (Identity, error) {
	user, err := c.VerifyAccessToken(ctx, token)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return Identity{}, err
	}
	return Identity{PlayerID: user.ID, Email: user.Email}, nil
}

func (c *SupabaseClient) VerifyAccessToken(ctx context.Context, accessToken string) (SupabaseUser, error) {
	key := tokenKey(accessToken)
	if u, ok := c.cached(key); ok {
		return u, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return SupabaseUser{}, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SupabaseUser{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return SupabaseUser{}, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var user SupabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return SupabaseUser{}, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return SupabaseUser{}, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	c.remember(key, user)
	return user, nil
}

func (c *SupabaseClient) cached(key string) (SupabaseUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return SupabaseUser{}, false
	}
	if c.now().After(e.expires) {
		delete(c.cache, key)
		return SupabaseUser{}, false
	}
	return e.user, true
}

func (c *SupabaseClient) remember(key string, user SupabaseUser) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.cache) > 10_000 {
		for k, e := range c.cache {
			if now.After(e.expires) {
				delete(c.cache, k)
			}
		}
	}
	c.cache[key] = cachedUser{user: user, expires: now.Add(c.cacheTTL)}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (c *SupabaseClient) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
