package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/toothsense-analysis-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// TOOTHSENSE_INFERENCE_BASE_URL.
const EnvPrefix = "TOOTHSENSE"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithPaths(".", "./config", "/etc/toothsense/")
}

// NewManagerWithPaths creates a manager that searches the given directories
// for config.yaml.
func NewManagerWithPaths(paths ...string) (*Manager, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	m := &Manager{v: v}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional, defaults and env vars cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")

	// Collaborator defaults
	v.SetDefault("inference.base_url", "https://boti-boi.om-mishra.com/api")
	v.SetDefault("inference.timeout", "30s")
	v.SetDefault("inference.rate_limit", 5)
	v.SetDefault("inference.mock", false)

	v.SetDefault("recommendation.enabled", true)
	v.SetDefault("recommendation.base_url", "https://boti-boi.om-mishra.com/api")
	v.SetDefault("recommendation.timeout", "20s")
	v.SetDefault("recommendation.rate_limit", 2)

	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_threshold", 5)

	// Pacing between stages
	v.SetDefault("pacing.uploading", "800ms")
	v.SetDefault("pacing.preprocessing", "800ms")
	v.SetDefault("pacing.generating", "500ms")

	v.SetDefault("analysis.max_image_bytes", 10*1024*1024)
	v.SetDefault("analysis.max_dimension", 0)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.memory_size", 256)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "toothsense")

	v.SetDefault("mcp.server_name", "toothsense-analysis")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a loaded configuration.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if !config.Inference.Mock {
		if err := validateURL("inference base URL", config.Inference.BaseURL); err != nil {
			return err
		}
	}
	if config.Recommendation.Enabled {
		if err := validateURL("recommendation base URL", config.Recommendation.BaseURL); err != nil {
			return err
		}
	}
	if config.Inference.RateLimit <= 0 || config.Recommendation.RateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if config.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be at least 1")
	}
	if config.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("circuit breaker timeout must be positive")
	}

	p := config.Pacing
	if p.Uploading < 0 || p.Preprocessing < 0 || p.Generating < 0 {
		return fmt.Errorf("pacing durations must not be negative")
	}

	if config.Analysis.MaxImageBytes <= 0 {
		return fmt.Errorf("invalid max image size: %d", config.Analysis.MaxImageBytes)
	}
	if config.Analysis.MaxDimension < 0 {
		return fmt.Errorf("invalid max image dimension: %d", config.Analysis.MaxDimension)
	}

	if config.Cache.Enabled && config.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache memory size must be positive when the cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q", name, raw)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
