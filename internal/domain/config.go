package domain

import (
	"time"
)

// Default analysis parameters
const (
	// DefaultCapaThreshold is the minimum number of joined reports a drug /
	// reaction pair needs before it becomes a CAPA candidate.
	DefaultCapaThreshold = 5
	// DefaultMismatchPreviewLimit bounds how many mismatches are listed.
	DefaultMismatchPreviewLimit = 10
	// DefaultTestFraction is the share of usable rows held out for scoring.
	DefaultTestFraction = 0.3
	// DefaultEstimators is the number of trees in the risk forest.
	DefaultEstimators = 100
	// DefaultSeed drives both the train/test shuffle and the forest.
	DefaultSeed = 42
	// DefaultMinSamplesSplit is the smallest node the forest will split.
	DefaultMinSamplesSplit = 2
)

// Config represents the main application configuration
type Config struct {
	Environment    string               `mapstructure:"environment"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Source         SourceConfig         `mapstructure:"source"`
	Analysis       AnalysisConfig       `mapstructure:"analysis"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	MCP            MCPConfig            `mapstructure:"mcp"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EnableMetrics  bool          `mapstructure:"enable_metrics"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	CopyBatchSize   int           `mapstructure:"copy_batch_size"`
}

// SourceType names a record source implementation
type SourceType string

const (
	SourceFAERS    SourceType = "faers"
	SourceSQLite   SourceType = "sqlite"
	SourcePostgres SourceType = "postgres"
)

// IsValid reports whether the source type is known
func (s SourceType) IsValid() bool {
	switch s {
	case SourceFAERS, SourceSQLite, SourcePostgres:
		return true
	default:
		return false
	}
}

// SourceConfig selects where the batch's records come from
type SourceConfig struct {
	Type       SourceType `mapstructure:"type"`
	Dir        string     `mapstructure:"dir"`         // FAERS ASCII directory
	Quarter    string     `mapstructure:"quarter"`     // e.g. 20Q4
	SQLitePath string     `mapstructure:"sqlite_path"` // SQLite database file
}

// AnalysisConfig holds the tunable thresholds and bounds of the detectors
// and the risk model.
type AnalysisConfig struct {
	CapaThreshold        int     `mapstructure:"capa_threshold"`
	MismatchPreviewLimit int     `mapstructure:"mismatch_preview_limit"`
	TestFraction         float64 `mapstructure:"test_fraction"`
	Estimators           int     `mapstructure:"estimators"`
	Seed                 int64   `mapstructure:"seed"`
	MaxDepth             int     `mapstructure:"max_depth"` // 0 means unbounded
	MinSamplesSplit      int     `mapstructure:"min_samples_split"`
}

// DefaultAnalysisConfig returns the parameters the dashboard has always used
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		CapaThreshold:        DefaultCapaThreshold,
		MismatchPreviewLimit: DefaultMismatchPreviewLimit,
		TestFraction:         DefaultTestFraction,
		Estimators:           DefaultEstimators,
		Seed:                 DefaultSeed,
		MinSamplesSplit:      DefaultMinSamplesSplit,
	}
}

// CacheConfig represents analysis cache configuration
type CacheConfig struct {
	MaxItems int           `mapstructure:"max_items"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}

// RateLimitConfig represents per-client HTTP rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CircuitBreakerConfig guards record source loads
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}
