package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables with development defaults so main stays lean.
type Config struct {
	Addr string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig

	// JWTSigningKey signs identity tokens (HS256).
	JWTSigningKey string

	// IdentityTTL is the sliding expiry window for anonymous identities.
	IdentityTTL time.Duration

	// QuotaLimit is the default per-identity quota for a window.
	QuotaLimit int64

	// AbuseSessionThreshold caps active sessions per client fingerprint.
	// Policy value, deliberately loose; tune via env rather than code.
	AbuseSessionThreshold int

	// ReaperInterval is the period between expiry sweeps.
	ReaperInterval time.Duration

	// AdminAPIKeyHash is a bcrypt hash guarding the admin surface.
	// Empty disables the admin routes.
	AdminAPIKeyHash string

	Upstream UpstreamConfig
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres-backed revocation ledger.
// Empty URL means the redis/memory ledger is used instead.
type PostgresConfig struct {
	URL string
}

// KafkaConfig configures the optional audit event sink.
// No brokers means audit events stay in the local store only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// UpstreamConfig points at the cost-bearing data API this service fronts.
type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr: envString("VIDGATE_ADDR", ":8080"),
		Redis: RedisConfig{
			URL:          os.Getenv("VIDGATE_REDIS_URL"),
			PoolSize:     envInt("VIDGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VIDGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("VIDGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VIDGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VIDGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("VIDGATE_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("VIDGATE_KAFKA_BROKERS")),
			Topic:   envString("VIDGATE_KAFKA_AUDIT_TOPIC", "vidgate.audit"),
		},
		JWTSigningKey:         envString("VIDGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		IdentityTTL:           envDuration("VIDGATE_IDENTITY_TTL", 24*time.Hour),
		QuotaLimit:            int64(envInt("VIDGATE_QUOTA_LIMIT", 100)),
		AbuseSessionThreshold: envInt("VIDGATE_ABUSE_SESSION_THRESHOLD", 25),
		ReaperInterval:        envDuration("VIDGATE_REAPER_INTERVAL", time.Hour),
		AdminAPIKeyHash:       os.Getenv("VIDGATE_ADMIN_API_KEY_HASH"),
		Upstream: UpstreamConfig{
			BaseURL: envString("VIDGATE_UPSTREAM_URL", "https://www.googleapis.com/youtube/v3"),
			APIKey:  os.Getenv("VIDGATE_UPSTREAM_API_KEY"),
			Timeout: envDuration("VIDGATE_UPSTREAM_TIMEOUT", 10*time.Second),
		},
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
