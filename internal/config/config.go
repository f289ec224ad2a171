// Package config provides configuration management for the fill tracker worker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Ops       OpsConfig
	Database  DatabaseConfig
	Chain     ChainConfig
	Queue     QueueConfig
	Pricing   PricingConfig
	Scheduler SchedulerConfig
	Measurer  MeasurerConfig
	Logging   LoggingConfig
}

// OpsConfig holds the operational HTTP server configuration
type OpsConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the analytics archive.
// Enabled is false when no host is configured; the worker then skips
// archiving entirely.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether the analytics archive is configured
func (c *ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds chain RPC configuration
type ChainConfig struct {
	RPCEndpoint    string
	RequestTimeout time.Duration
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	Workers     int
	MaxAttempts int
	DedupTTL    time.Duration
}

// PricingConfig holds price provider configuration
type PricingConfig struct {
	Endpoint       string
	RequestTimeout time.Duration
	// MinCallInterval is the minimum delay between outbound provider calls,
	// independent of success or failure.
	MinCallInterval time.Duration
}

// SchedulerConfig holds fill creation scheduler configuration
type SchedulerConfig struct {
	BatchSize int
	Interval  time.Duration
}

// MeasurerConfig holds fill value measurer configuration
type MeasurerConfig struct {
	BatchSize int
	Interval  time.Duration
	// MaxAttempts is the number of zero-value measurement passes after which
	// a fill is marked immeasurable and no longer retried.
	MaxAttempts int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Ops: OpsConfig{
			Port: getEnv("OPS_PORT", "8080"),
			Host: getEnv("OPS_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "fill_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "fill_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Chain: ChainConfig{
			RPCEndpoint:    getEnv("ETHEREUM_RPC_ENDPOINT", "https://cloudflare-eth.com"),
			RequestTimeout: getEnvAsDuration("ETHEREUM_RPC_TIMEOUT", 15*time.Second),
		},
		Queue: QueueConfig{
			Workers:     getEnvAsInt("QUEUE_WORKERS", 5),
			MaxAttempts: getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			DedupTTL:    getEnvAsDuration("QUEUE_DEDUP_TTL", 24*time.Hour),
		},
		Pricing: PricingConfig{
			Endpoint:        getEnv("PRICING_ENDPOINT", "https://api.coingecko.com/api/v3"),
			RequestTimeout:  getEnvAsDuration("PRICING_REQUEST_TIMEOUT", 10*time.Second),
			MinCallInterval: getEnvAsDuration("PRICING_MIN_CALL_INTERVAL", 100*time.Millisecond),
		},
		Scheduler: SchedulerConfig{
			BatchSize: getEnvAsInt("SCHEDULER_BATCH_SIZE", 100),
			Interval:  getEnvAsDuration("SCHEDULER_INTERVAL", 30*time.Second),
		},
		Measurer: MeasurerConfig{
			BatchSize:   getEnvAsInt("MEASURER_BATCH_SIZE", 50),
			Interval:    getEnvAsDuration("MEASURER_INTERVAL", time.Minute),
			MaxAttempts: getEnvAsInt("MEASURER_MAX_ATTEMPTS", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
