package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hexidle/internal/auth"
	"hexidle/internal/catalog"
	"hexidle/internal/config"
	"hexidle/internal/feed"
	"hexidle/internal/game"
	"hexidle/internal/store/memstore"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv   *Server
	svc   *game.Service
	clock *testClock
	hub   *feed.Hub
}

func newTestEnv(t *testing.T, limiter Limiter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	hub := feed.NewHub(8, logger)
	svc := game.NewService(memstore.New(time.Second), catalog.Default(), game.DefaultRules(), logger,
		game.WithClock(clock.Now), game.WithEvents(hub))
	if _, err := svc.SeedMap(context.Background(), nil); err != nil {
		t.Fatalf("seed map: %v", err)
	}
	local, err := auth.NewLocalProvider(svc, "test-secret", time.Hour, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("local provider: %v", err)
	}
	srv := New(config.APIConfig{}, logger, Deps{
		Game:     svc,
		Verifier: local,
		Local:    local,
		Feed:     hub,
		Limiter:  limiter,
	})
	return &testEnv{srv: srv, svc: svc, clock: clock, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"username": username, "password": "hunter22"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rec.Code, rec.Body.String())
	}
	var tok auth.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.Token
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return out.Error
}

func TestRegisterLoginAndState(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "Alice")

	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "ALICE", "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}

	e.clock.Advance(100 * time.Second)
	rec = e.do(t, http.MethodGet, "/v1/state", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: %d %s", rec.Code, rec.Body.String())
	}
	var view game.PlayerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Username != "alice" || view.TileQ != 3 || view.TileR != 3 || view.TileType != "village" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Resources.Gold.Sign() <= 0 {
		t.Fatalf("expected accrued gold, got %s", view.Resources.Gold)
	}
}

func TestRegisterErrors(t *testing.T) {
	e := newTestEnv(t, nil)
	e.register(t, "bob")

	cases := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", map[string]string{"username": "BOB", "password": "hunter22"}, http.StatusConflict},
		{"short username", map[string]string{"username": "bo", "password": "hunter22"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "carol", "password": "123"}, http.StatusBadRequest},
		{"long password", map[string]string{"username": "carol", "password": strings.Repeat("a", 80)}, http.StatusBadRequest},
		{"unknown field", map[string]any{"username": "dave", "password": "hunter22", "admin": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/v1/auth/register", "", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "bob", "password": "wrong-one"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t, nil)
	if rec := e.do(t, http.MethodGet, "/v1/state", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/state", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/leaderboard", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected public leaderboard, got %d", rec.Code)
	}
}

func TestTravelValidationAndCooldown(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")

	rec := e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 4})
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "q and r required" {
		t.Fatalf("expected q and r required, got %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 6, "r": 6})
	if rec.Code != http.StatusBadRequest || !strings.Contains(errorBody(t, rec), "adjacent") {
		t.Fatalf("expected adjacency rejection, got %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 4, "r": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("move: %d %s", rec.Code, rec.Body.String())
	}

	e.clock.Advance(2 * time.Second)
	rec = e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 3, "r": 3})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected cooldown 429, got %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Fatalf("expected Retry-After 3, got %q", got)
	}
	if msg := errorBody(t, rec); msg != "wait 3 seconds before moving again" {
		t.Fatalf("unexpected cooldown message %q", msg)
	}

	e.clock.Advance(3 * time.Second)
	rec = e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 3, "r": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("move after cooldown: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBuyAndPrestigeRejections(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")

	rec := e.do(t, http.MethodPost, "/v1/upgrades/wooden_pickaxe/buy", token, nil)
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(errorBody(t, rec), "not enough") {
		t.Fatalf("expected not enough, got %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/v1/upgrades/laser_drill/buy", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid upgrade 400, got %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/prestige", token, nil)
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "insufficient gold to prestige" {
		t.Fatalf("expected prestige lock, got %d %s", rec.Code, rec.Body.String())
	}

	e.clock.Advance(time.Hour)
	rec = e.do(t, http.MethodPost, "/v1/upgrades/wooden_pickaxe/buy", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("buy after an hour: %d %s", rec.Code, rec.Body.String())
	}
	var view game.PlayerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Upgrades["wooden_pickaxe"] != 1 {
		t.Fatalf("expected wooden_pickaxe owned, got %v", view.Upgrades)
	}
}

func TestUpgradesMapAndLeaderboard(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")
	e.register(t, "bob")

	rec := e.do(t, http.MethodGet, "/v1/upgrades", token, nil)
	var ups struct {
		Upgrades []game.UpgradeView `json:"upgrades"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &ups) != nil || len(ups.Upgrades) != 7 {
		t.Fatalf("upgrades: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/v1/map", token, nil)
	var m game.MapView
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &m) != nil {
		t.Fatalf("map: %d %s", rec.Code, rec.Body.String())
	}
	start := m.Tiles[3*7+3]
	if len(start.Players) != 2 || start.Players[0] != "alice" {
		t.Fatalf("unexpected occupants %+v", start)
	}

	rec = e.do(t, http.MethodGet, "/v1/leaderboard?limit=1", "", nil)
	var lb struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &lb) != nil || len(lb.Rows) != 1 {
		t.Fatalf("leaderboard: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodGet, "/v1/leaderboard?limit=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, NewMemoryLimiter(0.001, 1))
	token := e.register(t, "alice")

	if rec := e.do(t, http.MethodGet, "/v1/state", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := e.do(t, http.MethodGet, "/v1/state", token, nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	other := e.register(t, "bob")
	if rec := e.do(t, http.MethodGet, "/v1/state", other, nil); rec.Code != http.StatusOK {
		t.Fatalf("other player should not be limited, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := e.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
	}
}

func TestMapFeedStreamsMoves(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/map/feed?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if rec := e.do(t, http.MethodPost, "/v1/map/travel", token, map[string]int{"q": 4, "r": 3}); rec.Code != http.StatusOK {
		t.Fatalf("move: %d %s", rec.Code, rec.Body.String())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev game.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != game.EventMoved || ev.Username != "alice" || ev.To.Q != 4 || ev.To.R != 3 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestMemoryLimiterRefills(t *testing.T) {
	l := NewMemoryLimiter(1, 1)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "p"); !ok {
		t.Fatalf("first call should pass")
	}
	ok, retry := l.Allow(ctx, "p")
	if ok || retry <= 0 || retry > time.Second {
		t.Fatalf("expected refusal with wait <= 1s, got ok=%v retry=%v", ok, retry)
	}
	now = now.Add(time.Second)
	if ok, _ := l.Allow(ctx, "p"); !ok {
		t.Fatalf("expected token after refill")
	}
}
