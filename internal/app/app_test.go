package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"hexidle/internal/config"
	"hexidle/internal/game"
)

func TestRulesFromConfig(t *testing.T) {
	r := Rules(config.GameConfig{OfflineCap: time.Hour, MoveCooldown: 2 * time.Second, LeaderboardLimit: 7})
	if r.OfflineCap != time.Hour || r.MoveCooldown != 2*time.Second || r.LeaderboardLimit != 7 {
		t.Fatalf("unexpected rules %+v", r)
	}
	if r.StartTile.Q != 3 || r.StartTile.R != 3 {
		t.Fatalf("expected reference start tile, got %v", r.StartTile)
	}
}

func TestOpenLocalStores(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []config.GameConfig{
		{Store: config.StoreMemory, LockTimeout: time.Second},
		{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "hex.db"), LockTimeout: time.Second},
	}
	for _, cfg := range cases {
		t.Run(cfg.Store, func(t *testing.T) {
			ctx := context.Background()
			rt, err := Open(ctx, cfg, logger, true, "test")
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer rt.Close()
			if rt.Pool != nil {
				t.Fatalf("unexpected pool for %s", cfg.Store)
			}
			svc := game.NewService(rt.Store, rt.Catalog, rt.Rules, logger)
			seeded, err := svc.SeedMap(ctx, nil)
			if err != nil || !seeded {
				t.Fatalf("seed: %v %v", seeded, err)
			}
			if _, err := svc.Register(ctx, "p1", "alice", "hash"); err != nil {
				t.Fatalf("register: %v", err)
			}
		})
	}
}

func TestOpenUnknownStore(t *testing.T) {
	if _, err := Open(context.Background(), config.GameConfig{Store: "mongo"}, nil, false, ""); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}
