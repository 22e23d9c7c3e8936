// internal/config/config.go

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	SerpAPI     SerpAPIConfig
	Scheduler   SchedulerConfig
	Analytics   AnalyticsConfig
	Log         LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
	AutoMigrate  bool
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	SubjectPrefix  string
}

// RedisConfig holds the auction insight cache configuration. An empty Addr
// disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// SerpAPIConfig holds the search data source configuration
type SerpAPIConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	MaxRetries     int
	RetryDelay     time.Duration
}

// SchedulerConfig holds cron specs for the periodic operations. An empty spec
// disables that job.
type SchedulerConfig struct {
	Enabled          bool
	PresenceSpec     string
	CreativePollSpec string
	BrandScanSpec    string
}

// AnalyticsConfig holds tunables shared by the analytics engines
type AnalyticsConfig struct {
	DefaultWindowDays int
	AlertIDCap        int
	SnippetTrail      int
	MaxAdsPerSnapshot int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// Load loads configuration from environment variables, after applying a
// local .env file if one exists.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading .env: %w", err)
	}

	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "adintel"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
			SubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "adintel"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", 10*time.Minute),
		},
		SerpAPI: SerpAPIConfig{
			BaseURL:        getEnv("SERPAPI_BASE_URL", "https://serpapi.com/search"),
			APIKey:         getEnv("SERPAPI_API_KEY", ""),
			Timeout:        getEnvAsDuration("SERPAPI_TIMEOUT", 60*time.Second),
			RequestsPerSec: getEnvAsFloat("SERPAPI_REQUESTS_PER_SEC", 1.0),
			Burst:          getEnvAsInt("SERPAPI_BURST", 2),
			MaxRetries:     getEnvAsInt("SERPAPI_MAX_RETRIES", 3),
			RetryDelay:     getEnvAsDuration("SERPAPI_RETRY_DELAY", 2*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			PresenceSpec:     getEnv("SCHEDULER_PRESENCE_SPEC", "0 0 * * * *"),
			CreativePollSpec: getEnv("SCHEDULER_CREATIVE_POLL_SPEC", "0 0 6 * * *"),
			BrandScanSpec:    getEnv("SCHEDULER_BRAND_SCAN_SPEC", "0 30 6 * * *"),
		},
		Analytics: AnalyticsConfig{
			DefaultWindowDays: getEnvAsInt("ANALYTICS_DEFAULT_WINDOW_DAYS", 30),
			AlertIDCap:        getEnvAsInt("ANALYTICS_ALERT_ID_CAP", 20),
			SnippetTrail:      getEnvAsInt("ANALYTICS_SNIPPET_TRAIL", 40),
			MaxAdsPerSnapshot: getEnvAsInt("ANALYTICS_MAX_ADS_PER_SNAPSHOT", 100),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_ENCODING", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	return config, validate(config)
}

// ConnString returns the postgres connection URL for pgxpool
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.SerpAPI.APIKey == "" && config.Environment != "development" {
		return fmt.Errorf("SERPAPI_API_KEY must be set in non-development environments")
	}

	if config.Analytics.DefaultWindowDays < 1 || config.Analytics.DefaultWindowDays > 365 {
		return fmt.Errorf("ANALYTICS_DEFAULT_WINDOW_DAYS must be between 1 and 365, got %d", config.Analytics.DefaultWindowDays)
	}

	if config.Analytics.AlertIDCap < 1 {
		return fmt.Errorf("ANALYTICS_ALERT_ID_CAP must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
