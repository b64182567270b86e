// Package app wires a configured store, catalog and game service. It is
// shared by the API server and the admin tool.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"hexidle/internal/catalog"
	"hexidle/internal/config"
	"hexidle/internal/db"
	"hexidle/internal/game"
	"hexidle/internal/store/memstore"
	"hexidle/internal/store/pgstore"
	"hexidle/internal/store/sqlitestore"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Runtime struct {
	Store   game.Store
	Catalog *catalog.Catalog
	Rules   game.Rules
	// Pool is nil unless the store is postgres.
	Pool *pgxpool.Pool

	closers []func()
}

func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Rules maps config onto game rules. Unset values keep the reference
// defaults.
func Rules(cfg config.GameConfig) game.Rules {
	rules := game.DefaultRules()
	rules.OfflineCap = cfg.OfflineCap
	rules.MoveCooldown = cfg.MoveCooldown
	rules.LeaderboardLimit = cfg.LeaderboardLimit
	return rules
}

// Open loads the catalog and connects the configured store. With migrate
// set, postgres migrations run before the store is returned.
func Open(ctx context.Context, cfg config.GameConfig, logger *slog.Logger, migrate bool, appName string) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	rt := &Runtime{Catalog: cat, Rules: Rules(cfg)}

	switch cfg.Store {
	case config.StoreMemory:
		rt.Store = memstore.New(cfg.LockTimeout)
	case config.StoreSQLite:
		st, err := sqlitestore.Open(cfg.SQLitePath, cfg.LockTimeout)
		if err != nil {
			return nil, err
		}
		rt.Store = st
		rt.closers = append(rt.closers, func() { _ = st.Close() })
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: appName})
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		if migrate {
			applied, err := db.Migrate(ctx, pool, logger)
			if err != nil {
				rt.Close()
				return nil, err
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "versions", applied)
			}
		}
		rt.Store = pgstore.New(pool, cfg.LockTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	logger.Info("store ready", "store", cfg.Store, "tiles", len(cat.Tiles()), "upgrades", len(cat.Upgrades()))
	return rt, nil
}
