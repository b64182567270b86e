package api

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether key may make another request now. When it says
// no, retryAfter is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration)
}

// MemoryLimiter keeps one token bucket per key.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(perSecond float64, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) > 50_000 {
			m.sweep(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[key] = e
	}
	e.lastSeen = now

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for k, e := range m.limiters {
		if now.Sub(e.lastSeen) > m.idle {
			delete(m.limiters, k)
		}
	}
}

// RedisLimiter is a fixed window counter shared by every API replica.
// Redis errors let the request through.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	log    *slog.Logger
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = time.Second
	}
	if max <= 0 {
		max = 1
	}
	return &RedisLimiter{client: client, max: int64(max), window: window, log: logger}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	k := "hexidle:rl:" + strconv.FormatInt(int64(l.window/time.Millisecond), 10) + ":" + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		l.log.Warn("rate limiter redis error", "err", err)
		return true, 0
	}
	if n == 1 {
		l.client.Expire(ctx, k, l.window)
	}
	if n <= l.max {
		return true, 0
	}
	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl
}
