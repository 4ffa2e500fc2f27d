package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "profilevault/pkg/platform/strings"
)

// Config captures process-level configuration. Domain services never read the
// environment themselves; main builds one of these and passes pieces down.
type Config struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string
	SessionTTL    time.Duration

	// StoreBackend selects the record store implementation: memory, redis
	// or postgres.
	StoreBackend string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig holds connection settings for the Redis-backed record store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds connection settings for the Postgres-backed record store.
type PostgresConfig struct {
	URL string
}

// KafkaConfig holds settings for the optional security-event sink. Empty
// Brokers disables the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("PROFILEVAULT_ADDR", ":8080"),
		AdminToken:    os.Getenv("PROFILEVAULT_ADMIN_TOKEN"),
		JWTSigningKey: envOr("PROFILEVAULT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SessionTTL:    envDurationOr("PROFILEVAULT_SESSION_TTL", 30*time.Minute),
		StoreBackend:  envOr("PROFILEVAULT_STORE", "memory"),
		Redis: RedisConfig{
			URL:          os.Getenv("PROFILEVAULT_REDIS_URL"),
			PoolSize:     envIntOr("PROFILEVAULT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("PROFILEVAULT_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("PROFILEVAULT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("PROFILEVAULT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("PROFILEVAULT_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("PROFILEVAULT_POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Topic: envOr("PROFILEVAULT_KAFKA_TOPIC", "profilevault.security"),
		},
	}
	if brokers := os.Getenv("PROFILEVAULT_KAFKA_BROKERS"); brokers != "" {
		// Broker hostnames are case-insensitive; normalize so "Kafka-1" and
		// "kafka-1" do not produce two bootstrap entries.
		cfg.Kafka.Brokers = pstrings.DedupeAndTrimLower(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
