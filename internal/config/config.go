// Package config loads the server and CLI configuration from environment
// variables, applies defaults and validates everything up front so a bad
// setting fails at startup instead of mid-batch.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Rules     RulesConfig
	Enrich    EnrichConfig
	Pipeline  PipelineConfig
	Report    ReportConfig
	ChangeLog ChangeLogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8090)
	Port int `env:"SERVER_PORT" default:"8090"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, bounded by RequestTimeout)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for API requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds change-log database settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the number of batches normalized at once (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds one batch including enrichment (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	// UploadLimit is requests per minute for the batch upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RulesConfig locates the rule profile.
type RulesConfig struct {
	// ProfilePath overrides the profile search when set and present on disk
	ProfilePath string `env:"ADDRNORM_PROFILE"`

	// StreetAbbrPath overrides the sibling street_abbr.yaml
	StreetAbbrPath string `env:"ADDRNORM_STREET_ABBR"`

	// SearchDepth is how many ancestor directories are searched (default: 5)
	SearchDepth int `env:"RULES_SEARCH_DEPTH" default:"5"`
}

// EnrichConfig configures the external address parser.
type EnrichConfig struct {
	Enabled bool          `env:"ENRICH_ENABLED" default:"false"`
	URL     string        `env:"ENRICH_URL" default:"http://localhost:8080"`
	Timeout time.Duration `env:"ENRICH_TIMEOUT" default:"5s"`

	// Retries is extra attempts after the first (default: 1, two attempts in total)
	Retries      int           `env:"ENRICH_RETRIES" default:"1"`
	RetryBackoff time.Duration `env:"ENRICH_RETRY_BACKOFF" default:"200ms"`

	// RatePerSec caps outbound requests; 0 means unlimited
	RatePerSec float64 `env:"ENRICH_RATE_PER_SEC" default:"0"`

	// CacheSize is the in-memory response cache size; 0 disables it (default: 1000)
	CacheSize int           `env:"ENRICH_CACHE_SIZE" default:"1000"`
	CacheTTL  time.Duration `env:"ENRICH_CACHE_TTL" default:"24h"`

	// RedisURL selects a shared Redis cache instead of the in-memory one
	RedisURL string `env:"REDIS_URL"`
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	Workers int `env:"PIPELINE_WORKERS" default:"4"`

	// OutputMode is addr-only or extended (default: addr-only)
	OutputMode string `env:"OUTPUT_MODE" default:"addr-only"`

	// BatchHistory is how many finished batches stay available for reports (default: 32)
	BatchHistory int `env:"BATCH_HISTORY" default:"32"`
}

// ReportConfig controls the change report.
type ReportConfig struct {
	MaxValueLen int `env:"REPORT_MAX_VALUE_LEN" default:"120"`
	// PerFieldCap limits lines per field; 0 shows every change
	PerFieldCap int `env:"REPORT_PER_FIELD_CAP" default:"0"`
}

// ChangeLogConfig controls retention of persisted batches.
type ChangeLogConfig struct {
	RetentionDays int           `env:"CHANGELOG_RETENTION_DAYS" default:"90"`
	PurgeInterval time.Duration `env:"CHANGELOG_PURGE_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
