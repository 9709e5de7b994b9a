// Package config loads application configuration. Defaults come from an
// optional YAML file (QUILL_CONFIG); environment variables override the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillcms/quill/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Upload        UploadConfig        `yaml:"upload"`
	Logs          LogsConfig          `yaml:"logs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds identity and token configuration
type AuthConfig struct {
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	TokenCacheSize  int           `yaml:"token_cache_size"`

	// RootPassword seeds the root account on first boot.
	RootPassword string `yaml:"root_password"`
}

// UploadConfig holds file upload configuration
type UploadConfig struct {
	Dir          string   `yaml:"dir"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	MaxFiles     int      `yaml:"max_files"`
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	SiteDomain   string   `yaml:"site_domain"`
}

// LogsConfig holds request log configuration
type LogsConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from the optional YAML file named by the
// QUILL_CONFIG environment variable, then applies environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("QUILL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			TokenCacheSize:  1024,
		},
		Upload: UploadConfig{
			Dir:          "assets",
			MaxFileBytes: 2 << 20,
			MaxFiles:     10,
			Exclude:      []string{".exe", ".dll", ".sh"},
			SiteDomain:   "http://localhost:5000",
		},
		Logs: LogsConfig{
			RetentionDays: 90,
			SweepSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("QUILL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("QUILL_PORT", cfg.Server.Port)
	cfg.Server.HealthPort = getEnv("QUILL_HEALTH_PORT", cfg.Server.HealthPort)
	cfg.Server.ReadTimeout = getEnvDuration("QUILL_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("QUILL_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("QUILL_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("QUILL_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.URL = getEnv("QUILL_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("QUILL_POSTGRES_MAX_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("QUILL_POSTGRES_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("QUILL_POSTGRES_CONN_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Auth.AccessTokenTTL = getEnvDuration("QUILL_ACCESS_TOKEN_TTL", cfg.Auth.AccessTokenTTL)
	cfg.Auth.RefreshTokenTTL = getEnvDuration("QUILL_REFRESH_TOKEN_TTL", cfg.Auth.RefreshTokenTTL)
	cfg.Auth.TokenCacheSize = getEnvInt("QUILL_TOKEN_CACHE_SIZE", cfg.Auth.TokenCacheSize)
	cfg.Auth.RootPassword = getEnv("QUILL_ROOT_PASSWORD", cfg.Auth.RootPassword)

	cfg.Upload.Dir = getEnv("QUILL_UPLOAD_DIR", cfg.Upload.Dir)
	cfg.Upload.MaxFileBytes = getEnvInt64("QUILL_UPLOAD_MAX_BYTES", cfg.Upload.MaxFileBytes)
	cfg.Upload.MaxFiles = getEnvInt("QUILL_UPLOAD_MAX_FILES", cfg.Upload.MaxFiles)
	cfg.Upload.SiteDomain = getEnv("QUILL_SITE_DOMAIN", cfg.Upload.SiteDomain)

	cfg.Logs.RetentionDays = getEnvInt("QUILL_LOG_RETENTION_DAYS", cfg.Logs.RetentionDays)
	cfg.Logs.SweepSchedule = getEnv("QUILL_LOG_SWEEP_SCHEDULE", cfg.Logs.SweepSchedule)

	cfg.Observability.LogLevelName = getEnv("QUILL_LOG_LEVEL", cfg.Observability.LogLevelName)
	cfg.Observability.MetricsEnabled = getEnvBool("QUILL_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("upload directory is required")
	}
	if len(c.Upload.Include) > 0 && len(c.Upload.Exclude) > 0 {
		return fmt.Errorf("upload include and exclude lists are mutually exclusive")
	}
	if c.Logs.RetentionDays <= 0 {
		return fmt.Errorf("log retention must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
