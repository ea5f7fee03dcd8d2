package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL and AMQP_URL are
// required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Broker: work queue + delivery channel share one RabbitMQ connection
	AmqpURL      string
	QueueName    string
	ExchangeName string

	// Directory cache. Empty REDIS_ADDR disables caching.
	RedisAddr         string
	DirectoryCacheTTL time.Duration

	// Delivery workers
	Workers      int
	BatchSize    int
	PollInterval time.Duration

	// Rate limiting: maximum publishes per second per alert kind
	RateLimit int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		AmqpURL:      amqpURL,
		QueueName:    getEnv("QUEUE_NAME", "alert-envelopes"),
		ExchangeName: getEnv("EXCHANGE_NAME", "alert-deliveries"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		DirectoryCacheTTL: getDuration("DIRECTORY_CACHE_TTL", 30*time.Second),

		Workers:      getInt("WORKERS", 5),
		BatchSize:    getInt("BATCH_SIZE", 10),
		PollInterval: getDuration("POLL_INTERVAL", time.Second),

		RateLimit: getInt("RATE_LIMIT_PER_KIND", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
