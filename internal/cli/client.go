package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hexidle/internal/auth"
	"hexidle/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx answer. RetryAfter is set for 429 and 503.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return e.Message
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Register(ctx context.Context, username, password string) (Session, error) {
	var out auth.Token
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"username": username,
		"password": password,
	}, &out)
	return sessionFromToken(out), err
}

func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var out auth.Token
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, &out)
	return sessionFromToken(out), err
}

// Signup and LoginEmail talk to a server running the Supabase provider.
func (c *Client) Signup(ctx context.Context, email, password, username string) (Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out)
	return sessionFromSupabase(out), err
}

func (c *Client) LoginEmail(ctx context.Context, email, password string) (Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return sessionFromSupabase(out), err
}

func (c *Client) State(ctx context.Context, token string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", token, nil, &out)
	return out, err
}

func (c *Client) Upgrades(ctx context.Context, token string) ([]game.UpgradeView, error) {
	var out struct {
		Upgrades []game.UpgradeView `json:"upgrades"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/upgrades", token, nil, &out)
	return out.Upgrades, err
}

func (c *Client) Buy(ctx context.Context, token, upgradeID string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/upgrades/"+url.PathEscape(upgradeID)+"/buy", token, nil, &out)
	return out, err
}

func (c *Client) Prestige(ctx context.Context, token string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/prestige", token, nil, &out)
	return out, err
}

func (c *Client) Map(ctx context.Context, token string) (game.MapView, error) {
	var out game.MapView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/map", token, nil, &out)
	return out, err
}

func (c *Client) Move(ctx context.Context, token string, q, r int) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/map/travel", token, map[string]any{"q": q, "r": r}, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out)
	return out.Rows, err
}

// DialFeed opens the map event websocket.
func (c *Client) DialFeed(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.BaseURL + "/v1/map/feed")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	return conn, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && (payload.Error != "" || payload.Msg != "") {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Msg
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func sessionFromToken(t auth.Token) Session {
	return Session{AccessToken: t.Token, PlayerID: t.PlayerID, Username: t.Username, ExpiresAt: t.ExpiresAt}
}

func sessionFromSupabase(s auth.Session) Session {
	out := Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		PlayerID:     s.User.ID,
		Email:        s.User.Email,
	}
	if s.ExpiresIn > 0 {
		out.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}
