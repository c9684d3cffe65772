package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	JWTSigningKey      string
	JWTIssuer          string
	JWTAudience        string
	PolicyPath         string
	// RequestTimeout bounds reading a request and writing its response. The
	// verification deadline itself lives in the policy file.
	RequestTimeout     time.Duration
	// EmbeddingDimension is the vector size produced by the device-side
	// extractor and stored in the index.
	EmbeddingDimension int
	Redis              RedisConfig
	Postgres           PostgresConfig
	Kafka              KafkaConfig
	RateLimit          RateLimitConfig
}

// RateLimitConfig bounds public requests per client IP. Zero Requests
// disables the limit.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RedisConfig configures the OTP cache client. An empty URL selects the
// in-memory cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the record store. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures the notification publisher. No brokers selects the
// log publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("ROLLCALL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:               envOr("ROLLCALL_ADDR", ":8080"),
		JWTSigningKey:      jwtSigningKey,
		JWTIssuer:          envOr("ROLLCALL_JWT_ISSUER", "rollcall"),
		JWTAudience:        envOr("ROLLCALL_JWT_AUDIENCE", "rollcall-authority"),
		PolicyPath:         os.Getenv("ROLLCALL_POLICY_FILE"),
		RequestTimeout:     envDuration("ROLLCALL_REQUEST_TIMEOUT", 15*time.Second),
		EmbeddingDimension: envInt("ROLLCALL_EMBEDDING_DIM", 512),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "rollcall.events"),
		},
		RateLimit: RateLimitConfig{
			Requests: envInt("ROLLCALL_RATE_LIMIT_REQUESTS", 120),
			Window:   envDuration("ROLLCALL_RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
