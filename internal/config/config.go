// Package config provides unified configuration loading for EngiDigitize.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// Remote providers.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// Config holds all configuration for EngiDigitize.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Remote        RemoteConfig        `yaml:"remote"`
	Session       SessionConfig       `yaml:"session"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Downloads     DownloadsConfig     `yaml:"downloads"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// RemoteConfig holds settings for the generative model call.
type RemoteConfig struct {
	Provider    string        `yaml:"provider"` // gemini or vertex
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Vertex      VertexConfig  `yaml:"vertex"`
}

// VertexConfig holds Vertex AI settings.
type VertexConfig struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ProcessingConfig holds settings for the simulated progress view.
type ProcessingConfig struct {
	SimulatedDuration time.Duration `yaml:"simulated_duration"`
}

// DownloadsConfig holds artifact download settings.
type DownloadsConfig struct {
	VectorExtension string `yaml:"vector_extension"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// AuditConfig holds run audit settings.
type AuditConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A missing remote credential is reported as a config DomainError.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   60 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   32 << 20,
			AllowedOrigins:   []string{"*"},
		},
		Remote: RemoteConfig{
			Provider:    ProviderGemini,
			Model:       "gemini-2.5-flash",
			Temperature: 0.1,
			Timeout:     120 * time.Second,
			Vertex: VertexConfig{
				Location: "us-central1",
			},
		},
		Session: SessionConfig{
			CookieName:    "engidigitize_session",
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Processing: ProcessingConfig{
			SimulatedDuration: 15 * time.Second,
		},
		Downloads: DownloadsConfig{
			VectorExtension: ".dxf",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        time.Hour,
			MaxEntries: 256,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "engidigitize:",
			},
		},
		Audit: AuditConfig{
			Enabled: false,
			Driver:  "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/engidigitize.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "engidigitize",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	switch c.Remote.Provider {
	case ProviderGemini:
		if strings.TrimSpace(c.Remote.APIKey) == "" {
			return domain.ConfigError("GEMINI_API_KEY is not set", nil)
		}
	case ProviderVertex:
		if strings.TrimSpace(c.Remote.Vertex.Project) == "" {
			return domain.ConfigError("VERTEX_PROJECT is not set", nil)
		}
	default:
		return domain.ConfigError(fmt.Sprintf("invalid remote provider: %s", c.Remote.Provider), nil)
	}

	if strings.TrimSpace(c.Remote.Model) == "" {
		return domain.ConfigError("remote model is empty", nil)
	}

	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote timeout must be positive")
	}

	if c.Remote.Temperature < 0 || c.Remote.Temperature > 2 {
		return fmt.Errorf("remote temperature must be between 0 and 2")
	}

	if c.Processing.SimulatedDuration <= 0 {
		return fmt.Errorf("simulated_duration must be positive")
	}

	if !strings.HasPrefix(c.Downloads.VectorExtension, ".") {
		return fmt.Errorf("vector_extension must start with a dot: %q", c.Downloads.VectorExtension)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Audit.Enabled && c.Audit.Driver != "sqlite" && c.Audit.Driver != "postgres" {
		return fmt.Errorf("invalid audit driver: %s", c.Audit.Driver)
	}

	if c.Audit.Enabled && c.Audit.Driver == "postgres" && c.Audit.Postgres.DSN == "" {
		return fmt.Errorf("audit postgres dsn is empty")
	}

	return nil
}

// AuditDSN returns the appropriate audit database connection string.
func (c *Config) AuditDSN() string {
	if c.Audit.Driver == "sqlite" {
		return c.Audit.SQLite.Path
	}
	return c.Audit.Postgres.DSN
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("REMOTE_PROVIDER"); v != "" {
		cfg.Remote.Provider = v
	}

	// API_KEY is the name the browser build used.
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}

	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Remote.Model = v
	}

	if v := os.Getenv("REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}

	if v := os.Getenv("VERTEX_PROJECT"); v != "" {
		cfg.Remote.Vertex.Project = v
	}

	if v := os.Getenv("VERTEX_LOCATION"); v != "" {
		cfg.Remote.Vertex.Location = v
	}

	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		opts, err := redis.ParseURL(v)
		if err != nil {
			return domain.ConfigError("invalid REDIS_URL", err)
		}
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = opts.Addr
		cfg.Cache.Redis.Password = opts.Password
		cfg.Cache.Redis.DB = opts.DB
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Audit.Enabled = true
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Audit.Driver = "sqlite"
			cfg.Audit.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Audit.Driver = "postgres"
			cfg.Audit.Postgres.DSN = v
		}
	}

	if v := os.Getenv("VECTOR_EXTENSION"); v != "" {
		cfg.Downloads.VectorExtension = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}
