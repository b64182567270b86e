package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hexidle/internal/auth"
	"hexidle/internal/config"
	"hexidle/internal/feed"
	"hexidle/internal/game"
	"hexidle/internal/hexgrid"
	"hexidle/internal/lbcache"
	"hexidle/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	PlayerID string
	Username string
	Email    string
	Token    string
}

// Deps are the collaborators the server routes to. Exactly one of Local
// and Supabase is set, matching cfg.AuthProvider.
type Deps struct {
	Game     *game.Service
	Verifier auth.Verifier
	Local    *auth.LocalProvider
	Supabase *auth.SupabaseClient
	Feed     *feed.Hub
	Limiter  Limiter
	Cache    *lbcache.Cache
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	game     *game.Service
	verifier auth.Verifier
	local    *auth.LocalProvider
	supabase *auth.SupabaseClient
	feed     *feed.Hub
	limiter  Limiter
	cache    *lbcache.Cache
	mux      *chi.Mux

	ensured sync.Map
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		game:     deps.Game,
		verifier: deps.Verifier,
		local:    deps.Local,
		supabase: deps.Supabase,
		feed:     deps.Feed,
		limiter:  deps.Limiter,
		cache:    deps.Cache,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if s.local != nil {
				r.Post("/auth/register", s.handleRegister)
				r.Post("/auth/login", s.handleLocalLogin)
			}
			if s.supabase != nil {
				r.Post("/auth/signup", s.handleSignup)
				r.Post("/auth/login", s.handleSupabaseLogin)
			}
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware(false))
				r.Use(s.rateLimit)
				r.Get("/state", s.handleState)
				r.Get("/upgrades", s.handleUpgrades)
				r.Post("/upgrades/{id}/buy", s.handleBuyUpgrade)
				r.Post("/prestige", s.handlePrestige)
				r.Get("/map", s.handleMap)
				r.Post("/map/travel", s.handleTravel)
			})
		})

		if s.feed != nil {
			r.With(s.authMiddleware(true)).Get("/map/feed", s.handleFeed)
		}
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(route, status, time.Since(start))
	})
}

// authMiddleware resolves the bearer token to a player. The map feed may
// pass the token as ?token= because browsers cannot set headers on a
// websocket upgrade.
func (s *Server) authMiddleware(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" && allowQuery {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			id, err := s.verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				s.log.Warn("token verification failed", "err", err)
				writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
				return
			}
			if s.supabase != nil {
				if err := s.ensurePlayer(r.Context(), id); err != nil {
					writeDomainError(w, err)
					return
				}
			}
			ctx := context.WithValue(r.Context(), userContextKey, UserContext{
				PlayerID: id.PlayerID,
				Username: id.Username,
				Email:    id.Email,
				Token:    token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ensurePlayer creates the state row for an external identity on its
// first authenticated request.
func (s *Server) ensurePlayer(ctx context.Context, id auth.Identity) error {
	if _, ok := s.ensured.Load(id.PlayerID); ok {
		return nil
	}
	if err := s.game.EnsurePlayer(ctx, id.PlayerID, id.Email, id.Username); err != nil {
		return err
	}
	s.ensured.Store(id.PlayerID, struct{}{})
	return nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ok, retry := s.limiter.Allow(r.Context(), user.PlayerID)
		if !ok {
			metrics.RateLimited.WithLabelValues(r.Method).Inc()
			w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(retry), 10))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.PlayerID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.game.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("store unavailable: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.local.Register(r.Context(), strings.TrimSpace(in.Username), in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleLocalLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.local.Login(r.Context(), strings.ToLower(strings.TrimSpace(in.Username)), in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.supabase.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if err := s.game.EnsurePlayer(r.Context(), session.User.ID, session.User.Email, in.Username); err != nil {
			writeDomainError(w, err)
			return
		}
		s.ensured.Store(session.User.ID, struct{}{})
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSupabaseLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.supabase.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.ensurePlayer(r.Context(), auth.Identity{PlayerID: session.User.ID, Email: session.User.Email}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	view, err := s.game.PlayerView(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpgrades(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Upgrades(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": out})
}

func (s *Server) handleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	view, err := s.game.BuyUpgrade(r.Context(), user.PlayerID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePrestige(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	view, err := s.game.Prestige(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Map(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTravel(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Q *int `json:"q"`
		R *int `json:"r"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Q == nil || in.R == nil {
		writeError(w, http.StatusBadRequest, "q and r required")
		return
	}
	view, err := s.game.MoveTo(r.Context(), user.PlayerID, hexgrid.Coord{Q: *in.Q, R: *in.R})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.game.Rules().LeaderboardLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > game.MaxLeaderboardLimit {
		limit = game.MaxLeaderboardLimit
	}
	out, err := s.cache.Leaderboard(r.Context(), limit, s.game.Leaderboard)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var cd *game.CooldownError
	if errors.As(err, &cd) {
		w.Header().Set("Retry-After", strconv.FormatInt(cd.Seconds(), 10))
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	switch game.KindOf(err) {
	case game.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case game.KindValidation, game.KindRuleViolation:
		writeError(w, http.StatusBadRequest, err.Error())
	case game.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case game.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, err.Error())
	case game.KindTransient:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func ceilSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
