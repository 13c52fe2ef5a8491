package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Log         LogConfig
	Broker      BrokerConfig
	Database    DatabaseConfig
	Worker      WorkerConfig
	Policy      PolicyConfig
	OCR         OCRConfig
	Ingest      IngestConfig
	Maintenance MaintenanceConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// BrokerConfig holds RabbitMQ connection configuration
type BrokerConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VHost     string
	Heartbeat time.Duration
}

// URL renders the broker config as an AMQP URI.
func (c BrokerConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// WorkerConfig holds consumer pool and retry configuration
type WorkerConfig struct {
	Workers        int
	ProcessTimeout time.Duration
	RetryLimit     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PolicyConfig holds the similarity threshold policy. Hash ceilings are
// maximum Hamming distances; a negative ceiling disables that algorithm.
type PolicyConfig struct {
	AHashMax          int
	DHashMax          int
	WHashHaarMax      int
	ColorHashMax      int
	SimilarityPercent float64
	MinTextLen        int
	PreprocessText    bool
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Language string
}

// IngestConfig holds the optional directory-watcher configuration.
// Watching is disabled when Dirs is empty.
type IngestConfig struct {
	Dirs     []string
	Debounce time.Duration
}

// MaintenanceConfig holds maintenance-queue configuration
type MaintenanceConfig struct {
	Enabled           bool
	OverwriteVerdicts bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: getEnv("LOGGER_LEVEL", "info"),
		},
		Broker: BrokerConfig{
			Host:      getEnv("RABBITMQ_HOST", "localhost"),
			Port:      getEnvAsInt("RABBITMQ_PORT", 5672),
			Username:  getEnv("RABBITMQ_USERNAME", "guest"),
			Password:  getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:     getEnv("RABBITMQ_VHOST", "/"),
			Heartbeat: getEnvAsDuration("RABBITMQ_HEARTBEAT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			Workers:        getEnvAsInt("WORKERS", 4),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
			RetryLimit:     getEnvAsInt("RETRY_LIMIT", 5),
			InitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", time.Second),
			MaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 30*time.Second),
		},
		Policy: PolicyConfig{
			AHashMax:          getEnvAsInt("AHASH_MAX_DISTANCE", 4),
			DHashMax:          getEnvAsInt("DHASH_MAX_DISTANCE", 8),
			WHashHaarMax:      getEnvAsInt("WHASH_HAAR_MAX_DISTANCE", 8),
			ColorHashMax:      getEnvAsInt("COLORHASH_MAX_DISTANCE", 0),
			SimilarityPercent: getEnvAsFloat64("SIMILARITY_PERCENTAGE", 60),
			MinTextLen:        getEnvAsInt("MIN_TEXT_LEN", 200),
			PreprocessText:    getEnvAsBool("ENABLE_PREPROCESS_TEXT", false),
		},
		OCR: OCRConfig{
			Language: getEnv("TESSERACT_LANG", "eng"),
		},
		Ingest: IngestConfig{
			Dirs:     getEnvAsList("WATCH_DIRS"),
			Debounce: getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		},
		Maintenance: MaintenanceConfig{
			Enabled:           getEnvAsBool("ENABLE_MAINTENANCE_QUEUE", false),
			OverwriteVerdicts: getEnvAsBool("MAINTENANCE_OVERWRITE_VERDICTS", false),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Broker.Host == "" {
		return NewAppError("CONFIG_ERROR", "RABBITMQ_HOST is required", ErrInvalidInput)
	}
	if c.Policy.SimilarityPercent < 1 || c.Policy.SimilarityPercent > 100 {
		return NewAppError("CONFIG_ERROR", "SIMILARITY_PERCENTAGE must be in 1..100", ErrInvalidInput)
	}
	if c.Policy.MinTextLen < 0 {
		return NewAppError("CONFIG_ERROR", "MIN_TEXT_LEN must be >= 0", ErrInvalidInput)
	}
	if c.Worker.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKERS must be positive", ErrInvalidInput)
	}
	if c.Worker.RetryLimit < 0 {
		return NewAppError("CONFIG_ERROR", "RETRY_LIMIT must be >= 0", ErrInvalidInput)
	}
	return nil
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

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
