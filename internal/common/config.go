package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store    StoreConfig
	Queue    QueueConfig
	Pipeline PipelineConfig
}

// StoreConfig holds checkpoint-store configuration
type StoreConfig struct {
	Backend          string // "sqlite" or "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	LeaseTTL         time.Duration
}

// QueueConfig holds worker-pool configuration
type QueueConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// PipelineConfig holds mapping-pipeline configuration
type PipelineConfig struct {
	MaxAttempts  int
	StageTimeout time.Duration
	ProfilesPath string // optional YAML with weight profiles and alias rules
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:          getEnv("STORE_BACKEND", "sqlite"),
			DSN:              getEnv("STORE_DSN", "fieldmap.db"),
			MaxConns:         getEnvAsInt32("STORE_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("STORE_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("STORE_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("STORE_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("STORE_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("STORE_STATEMENT_TIMEOUT", 0),
			LeaseTTL:         getEnvAsDuration("STORE_LEASE_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Workers:   getEnvAsInt("QUEUE_WORKERS", 4),
			QueueSize: getEnvAsInt("QUEUE_SIZE", 256),
			Timeout:   getEnvAsDuration("QUEUE_JOB_TIMEOUT", 3*time.Minute),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:  getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			StageTimeout: getEnvAsDuration("PIPELINE_STAGE_TIMEOUT", 2*time.Minute),
			ProfilesPath: getEnv("PIPELINE_PROFILES_PATH", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", "STORE_BACKEND must be sqlite or postgres", ErrInvalidInput)
	}
	if c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "STORE_DSN is required", ErrInvalidInput)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_MAX_ATTEMPTS must be >= 1", ErrInvalidInput)
	}
	if c.Queue.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be >= 1", ErrInvalidInput)
	}
	return nil
}
