package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	AuthLocal    = "local"
	AuthSupabase = "supabase"
)

// GameConfig is shared by the API server and the admin tool.
type GameConfig struct {
	LogLevel         slog.Level
	Store            string
	DatabaseURL      string
	SQLitePath       string
	CatalogFile      string
	OfflineCap       time.Duration
	MoveCooldown     time.Duration
	LeaderboardLimit int
	LockTimeout      time.Duration
}

type APIConfig struct {
	GameConfig

	Addr            string
	AuthProvider    string
	JWTSecret       string
	TokenTTL        time.Duration
	SupabaseURL     string
	SupabaseAnonKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit           float64
	RateBurst           int
	LeaderboardCacheTTL time.Duration

	StartupMigrate bool
	StartupSeedMap bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("HEXIDLE_API_ADDR", ":8080")
	}

	game, err := loadGame()
	cfg := APIConfig{
		GameConfig:          game,
		Addr:                addr,
		AuthProvider:        strings.ToLower(envDefault("HEXIDLE_AUTH_PROVIDER", AuthLocal)),
		JWTSecret:           strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL:            envDurationDefault("HEXIDLE_TOKEN_TTL", 7*24*time.Hour),
		SupabaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:     strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		RedisAddr:           strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envIntDefault("REDIS_DB", 0),
		RateLimit:           envFloatDefault("HEXIDLE_RATE_LIMIT", 20),
		RateBurst:           envIntDefault("HEXIDLE_RATE_BURST", 40),
		LeaderboardCacheTTL: envDurationDefault("HEXIDLE_LEADERBOARD_CACHE_TTL", 5*time.Second),
		StartupMigrate:      envBoolDefault("HEXIDLE_STARTUP_MIGRATE", true),
		StartupSeedMap:      envBoolDefault("HEXIDLE_STARTUP_SEED_MAP", true),
	}
	if err != nil {
		return cfg, err
	}

	switch cfg.AuthProvider {
	case AuthLocal:
		if cfg.JWTSecret == "" {
			return cfg, fmt.Errorf("JWT_SECRET is required for local auth")
		}
	case AuthSupabase:
		if cfg.SupabaseURL == "" {
			return cfg, fmt.Errorf("SUPABASE_URL is required")
		}
		if cfg.SupabaseAnonKey == "" {
			return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
		}
	default:
		return cfg, fmt.Errorf("unknown HEXIDLE_AUTH_PROVIDER %q", cfg.AuthProvider)
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return cfg, fmt.Errorf("rate limit and burst must not be negative")
	}
	return cfg, nil
}

// LoadGameFromEnv reads only the store and rule settings.
func LoadGameFromEnv() (GameConfig, error) {
	_ = godotenv.Load()
	return loadGame()
}

func loadGame() (GameConfig, error) {
	cfg := GameConfig{
		LogLevel:         ParseLogLevel(os.Getenv("HEXIDLE_LOG_LEVEL")),
		Store:            strings.ToLower(envDefault("HEXIDLE_STORE", StorePostgres)),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:       envDefault("HEXIDLE_SQLITE_PATH", "hexidle.db"),
		CatalogFile:      strings.TrimSpace(os.Getenv("HEXIDLE_CATALOG_FILE")),
		OfflineCap:       envDurationDefault("HEXIDLE_OFFLINE_CAP", 24*time.Hour),
		MoveCooldown:     envDurationDefault("HEXIDLE_MOVE_COOLDOWN", 5*time.Second),
		LeaderboardLimit: envIntDefault("HEXIDLE_LEADERBOARD_LIMIT", 20),
		LockTimeout:      envDurationDefault("HEXIDLE_LOCK_TIMEOUT", 3*time.Second),
	}
	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite, StoreMemory:
	default:
		return cfg, fmt.Errorf("unknown HEXIDLE_STORE %q", cfg.Store)
	}
	if cfg.LeaderboardLimit <= 0 {
		return cfg, fmt.Errorf("HEXIDLE_LEADERBOARD_LIMIT must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("HEX_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func ParseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
