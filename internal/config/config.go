package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret 개발용 기본값. production에서는 거부한다.
const DefaultJWTSecret = "your-secret-key"

var ErrInsecureJWTSecret = errors.New("JWT_SECRET must be set in production")

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT (lobby server 토큰)
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval  time.Duration
	MatchmakingModesPath string
	MatchmakingWorkers   int
	MaxSnapshotGroups    int
	UseDistributedLock   bool
	QueueExpiry          time.Duration
	RatingCacheTTL       time.Duration
	LaunchQueueName      string
	EnqueueRatePerMinute int
	EnqueueBurst         int
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:            getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiration:        parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		MatchmakingInterval:  parseDuration(getEnv("MATCHMAKING_INTERVAL", "5s"), 5*time.Second),
		MatchmakingModesPath: getEnv("MATCHMAKING_MODES_PATH", ""),
		MatchmakingWorkers:   parseInt(getEnv("MATCHMAKING_WORKERS", "4"), 4),
		MaxSnapshotGroups:    parseInt(getEnv("MATCHMAKING_MAX_SNAPSHOT_GROUPS", "12"), 12),
		UseDistributedLock:   parseBool(getEnv("MATCHMAKING_USE_DISTRIBUTED_LOCK", "false")),
		QueueExpiry:          parseDuration(getEnv("QUEUE_EXPIRY", "30m"), 30*time.Minute),
		RatingCacheTTL:       parseDuration(getEnv("RATING_CACHE_TTL", "30s"), 30*time.Second),
		LaunchQueueName:      getEnv("LAUNCH_QUEUE_NAME", "match_launch"),
		EnqueueRatePerMinute: parseInt(getEnv("ENQUEUE_RATE_PER_MINUTE", "30"), 30),
		EnqueueBurst:         parseInt(getEnv("ENQUEUE_BURST", "10"), 10),
		CORSAllowedOrigins:   parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if cfg.Env == "production" && cfg.JWTSecret == DefaultJWTSecret {
		return nil, ErrInsecureJWTSecret
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
