package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment    string               `mapstructure:"environment"`
	Server         ServerConfig         `mapstructure:"server"`
	Inference      InferenceConfig      `mapstructure:"inference"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Pacing         PacingConfig         `mapstructure:"pacing"`
	Analysis       AnalysisConfig       `mapstructure:"analysis"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	MCP            MCPConfig            `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// InferenceConfig configures the image inference backend client
type InferenceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // requests per second
	Mock      bool          `mapstructure:"mock"`
}

// RecommendationConfig configures the recommendation collaborator client
type RecommendationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// CircuitBreakerConfig is shared by both outbound clients
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// PacingConfig holds the UI pacing waits between stages
type PacingConfig struct {
	Uploading     time.Duration `mapstructure:"uploading"`
	Preprocessing time.Duration `mapstructure:"preprocessing"`
	Generating    time.Duration `mapstructure:"generating"`
}

// AnalysisConfig holds input limits. MaxDimension > 0 downscales decodable
// images during preprocessing so neither side exceeds it.
type AnalysisConfig struct {
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
	MaxDimension  int   `mapstructure:"max_dimension"`
}

// CacheConfig represents recommendation cache configuration.
// An empty RedisURL keeps the cache in-process only.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	MemorySize  int           `mapstructure:"memory_size"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
