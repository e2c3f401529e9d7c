package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdq-signal-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. PDQ_SERVER_PORT
const EnvPrefix = "PDQ"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty,
// in which case config.yaml is searched in the usual locations.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from defaults, the config file and the environment
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pdq/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// the config file is optional; defaults and environment still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
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
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "110s")
	v.SetDefault("server.enable_metrics", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "faers")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.migrations_path", "")
	v.SetDefault("database.copy_batch_size", 10000)

	// Source defaults
	v.SetDefault("source.type", string(domain.SourceFAERS))
	v.SetDefault("source.dir", "./data")
	v.SetDefault("source.quarter", "")
	v.SetDefault("source.sqlite_path", "./faers.db")

	// Analysis defaults
	v.SetDefault("analysis.capa_threshold", domain.DefaultCapaThreshold)
	v.SetDefault("analysis.mismatch_preview_limit", domain.DefaultMismatchPreviewLimit)
	v.SetDefault("analysis.test_fraction", domain.DefaultTestFraction)
	v.SetDefault("analysis.estimators", domain.DefaultEstimators)
	v.SetDefault("analysis.seed", domain.DefaultSeed)
	v.SetDefault("analysis.max_depth", 0)
	v.SetDefault("analysis.min_samples_split", domain.DefaultMinSamplesSplit)

	// Cache defaults
	v.SetDefault("cache.max_items", 8)
	v.SetDefault("cache.ttl", "15m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// MCP defaults
	v.SetDefault("mcp.server_name", "pdq-signal-server")
	v.SetDefault("mcp.server_version", "1.0.0")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_threshold", 3)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetAnalysisConfig returns the detector and risk model parameters
func (m *Manager) GetAnalysisConfig() domain.AnalysisConfig {
	return m.config.Analysis
}

// Set overrides a single key and re-decodes the configuration. Used for
// command line flags.
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = config
	return nil
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewValidationError("server.port", "must be between 1 and 65535", config.Server.Port)
	}

	// Validate source configuration
	if !config.Source.Type.IsValid() {
		return domain.NewValidationError("source.type", "must be one of faers, sqlite, postgres", config.Source.Type)
	}
	switch config.Source.Type {
	case domain.SourceFAERS:
		if config.Source.Dir == "" {
			return domain.NewValidationError("source.dir", "is required for the faers source", "")
		}
		if config.Source.Quarter == "" {
			return domain.NewValidationError("source.quarter", "is required for the faers source", "")
		}
	case domain.SourceSQLite:
		if config.Source.SQLitePath == "" {
			return domain.NewValidationError("source.sqlite_path", "is required for the sqlite source", "")
		}
	case domain.SourcePostgres:
		if config.Database.Host == "" {
			return domain.NewValidationError("database.host", "is required for the postgres source", "")
		}
		if config.Database.Database == "" {
			return domain.NewValidationError("database.database", "is required for the postgres source", "")
		}
	}

	// Validate analysis configuration
	a := config.Analysis
	if a.CapaThreshold < 1 {
		return domain.NewValidationError("analysis.capa_threshold", "must be at least 1", a.CapaThreshold)
	}
	if a.MismatchPreviewLimit < 0 {
		return domain.NewValidationError("analysis.mismatch_preview_limit", "must not be negative", a.MismatchPreviewLimit)
	}
	if a.TestFraction <= 0 || a.TestFraction >= 1 {
		return domain.NewValidationError("analysis.test_fraction", "must be between 0 and 1 exclusive", a.TestFraction)
	}
	if a.Estimators < 1 {
		return domain.NewValidationError("analysis.estimators", "must be at least 1", a.Estimators)
	}
	if a.MaxDepth < 0 {
		return domain.NewValidationError("analysis.max_depth", "must not be negative", a.MaxDepth)
	}
	if a.MinSamplesSplit < 2 {
		return domain.NewValidationError("analysis.min_samples_split", "must be at least 2", a.MinSamplesSplit)
	}

	// Validate rate limit configuration
	if config.RateLimit.Enabled && config.RateLimit.RequestsPerSecond <= 0 {
		return domain.NewValidationError("rate_limit.requests_per_second", "must be positive when rate limiting is enabled", config.RateLimit.RequestsPerSecond)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "unknown log level", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return domain.NewValidationError("logging.format", "must be json or text", config.Logging.Format)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database as a URL, the form golang-migrate and
// lib/pq accept
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: url.Values{"sslmode": []string{db.SSLMode}}.Encode(),
	}
	return u.String()
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
