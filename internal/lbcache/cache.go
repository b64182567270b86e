// Package lbcache keeps the leaderboard projection in Redis for a few
// seconds. Any Redis failure falls through to the loader.
package lbcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"hexidle/internal/game"
	"hexidle/internal/metrics"

	redis "github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Second

type Loader func(ctx context.Context, limit int) ([]game.LeaderboardRow, error)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// New returns a cache over client. A nil client makes every lookup a miss.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, prefix: "hexidle:lb:", log: logger}
}

// Dial connects and pings. On ping failure it returns nil so callers run
// without a cache.
func Dial(ctx context.Context, addr, password string, db int, logger *slog.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without it", "addr", addr, "err", err)
		_ = client.Close()
		return nil
	}
	return client
}

func (c *Cache) key(limit int) string {
	return c.prefix + strconv.Itoa(limit)
}

// Leaderboard serves from Redis when fresh, otherwise calls load and
// stores the result.
func (c *Cache) Leaderboard(ctx context.Context, limit int, load Loader) ([]game.LeaderboardRow, error) {
	if c == nil || c.client == nil {
		return load(ctx, limit)
	}
	key := c.key(limit)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []game.LeaderboardRow
		if jerr := json.Unmarshal(raw, &rows); jerr == nil {
			metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return rows, nil
		}
		metrics.LeaderboardCache.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.LeaderboardCache.WithLabelValues("miss").Inc()
	default:
		metrics.LeaderboardCache.WithLabelValues("error").Inc()
		c.log.Warn("leaderboard cache read failed", "err", err)
	}

	rows, err := load(ctx, limit)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return rows, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("leaderboard cache write failed", "err", err)
	}
	return rows, nil
}
