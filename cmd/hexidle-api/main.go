package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hexidle/internal/api"
	"hexidle/internal/app"
	"hexidle/internal/auth"
	"hexidle/internal/config"
	"hexidle/internal/feed"
	"hexidle/internal/game"
	"hexidle/internal/lbcache"
	"hexidle/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	rt, err := app.Open(ctx, cfg.GameConfig, logger, cfg.StartupMigrate, "hexidle-api")
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	hub := feed.NewHub(feed.DefaultBuffer, logger)
	hub.OnCount(func(n int) { metrics.FeedClients.Set(float64(n)) })

	gameSvc := game.NewService(rt.Store, rt.Catalog, rt.Rules, logger,
		game.WithEvents(hub),
		game.WithObserver(metrics.Observer{}),
	)
	if cfg.StartupSeedMap {
		seeded, err := gameSvc.SeedMap(ctx, nil)
		if err != nil {
			logger.Error("seed map failed", "err", err)
			os.Exit(1)
		}
		logger.Info("map ready", "seeded", seeded)
	}

	deps := api.Deps{Game: gameSvc, Feed: hub}
	switch cfg.AuthProvider {
	case config.AuthSupabase:
		client := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		deps.Supabase = client
		deps.Verifier = client
	default:
		local, err := auth.NewLocalProvider(gameSvc, cfg.JWTSecret, cfg.TokenTTL, auth.DefaultBcryptCost)
		if err != nil {
			logger.Error("local auth init failed", "err", err)
			os.Exit(1)
		}
		deps.Local = local
		deps.Verifier = local
	}

	redisClient := lbcache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if redisClient != nil {
		defer redisClient.Close()
		deps.Cache = lbcache.New(redisClient, cfg.LeaderboardCacheTTL, logger)
	}
	if cfg.RateLimit > 0 {
		if redisClient != nil {
			deps.Limiter = api.NewRedisLimiter(redisClient, int(cfg.RateLimit), time.Second, logger)
		} else {
			deps.Limiter = api.NewMemoryLimiter(cfg.RateLimit, cfg.RateBurst)
		}
	}

	server := api.New(cfg, logger, deps)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("hexidle api listening", "addr", cfg.Addr, "store", cfg.Store, "auth", cfg.AuthProvider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
