package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/levonm80/socapp/internal/util"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Storage    StorageConfig
	Clickhouse ClickhouseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Ingest     IngestConfig
	Detector   DetectorConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the sink backend. "clickhouse" is the production
// backend; "memory" keeps everything in-process for local development.
type StorageConfig struct {
	Backend string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
}

type IngestConfig struct {
	BatchSize         int
	HistoryDepth      int
	MaxConcurrentJobs int64
	MaxUploadSize     int64
}

type DetectorConfig struct {
	RulesPath string
}

var loaded *Config

// LoadConfig reads configuration from the environment. A .env file is
// honored when present so local runs match the container setup.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: util.GetEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:         util.GetEnv("HTTP_HOST", "0.0.0.0"),
			Port:         util.GetEnvInt("HTTP_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: util.GetEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  util.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Backend: util.GetEnv("STORAGE_BACKEND", "clickhouse"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "socapp"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", ""),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers:    util.GetEnvSlice("KAFKA_BROKERS", nil),
			AlertTopic: util.GetEnv("KAFKA_ALERT_TOPIC", "socapp.anomalies"),
		},
		Ingest: IngestConfig{
			BatchSize:         util.GetEnvInt("INGEST_BATCH_SIZE", 1000),
			HistoryDepth:      util.GetEnvInt("INGEST_HISTORY_DEPTH", 20),
			MaxConcurrentJobs: util.GetEnvInt64("INGEST_MAX_CONCURRENT_JOBS", 4),
			MaxUploadSize:     util.GetEnvInt64("INGEST_MAX_UPLOAD_SIZE", 256<<20),
		},
		Detector: DetectorConfig{
			RulesPath: util.GetEnv("DETECTOR_RULES_PATH", ""),
		},
	}

	loaded = cfg
	return cfg
}

// Get returns the last loaded config.
func Get() *Config {
	if loaded == nil {
		return LoadConfig()
	}
	return loaded
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetServerAddress returns the host:port the HTTP server binds to
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
