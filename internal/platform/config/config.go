package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for both binaries.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Worker   WorkerConfig
	Auth     AuthConfig
	Log      LogConfig
}

// Server captures ops HTTP server configuration.
type Server struct {
	Addr string
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// RedisConfig configures the settings cache. An empty URL selects the
// in-process cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SettingsTTL  time.Duration
}

// KafkaConfig configures the fraud-check queue. No brokers selects the
// in-process queue.
type KafkaConfig struct {
	Brokers       []string
	FraudTopic    string
	ConsumerGroup string
	Partitions    int32
	Replication   int16
}

// WorkerConfig configures asynchronous fraud checking and the stuck-claim monitor.
type WorkerConfig struct {
	AsyncFraudCheck bool
	Concurrency     int
	MaxAttempts     int
	Backoff         []time.Duration
	StuckAfter      time.Duration
	MonitorSchedule string
}

// AuthConfig configures caller-token verification.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultBackoff is the wait before the second and third fraud-check attempts.
var DefaultBackoff = []time.Duration{10 * time.Second, 30 * time.Second}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables always win.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr: getString("BENEFITS_OPS_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			URL:             getString("DATABASE_URL", ""),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 25),
			ConnMaxIdleTime: getDuration("DATABASE_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getString("REDIS_URL", ""),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			SettingsTTL:  getDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:       getList("KAFKA_BROKERS"),
			FraudTopic:    getString("KAFKA_FRAUD_TOPIC", "benefits.fraud-check"),
			ConsumerGroup: getString("KAFKA_CONSUMER_GROUP", "benefits-fraud-worker"),
			Partitions:    int32(getInt("KAFKA_FRAUD_PARTITIONS", 6)),
			Replication:   int16(getInt("KAFKA_FRAUD_REPLICATION", 1)),
		},
		Worker: WorkerConfig{
			AsyncFraudCheck: getString("ASYNC_FRAUD_CHECK", "true") == "true",
			Concurrency:     getInt("FRAUD_WORKERS", 4),
			MaxAttempts:     getInt("FRAUD_MAX_ATTEMPTS", 3),
			Backoff:         DefaultBackoff,
			StuckAfter:      getDuration("FRAUD_STUCK_AFTER", 15*time.Minute),
			MonitorSchedule: getString("FRAUD_MONITOR_SCHEDULE", "@every 5m"),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getString("JWT_ISSUER", "provincial-idp"),
		},
		Log: LogConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "text"),
		},
	}
}

func getString(key, fallback string) string {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string) []string {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
