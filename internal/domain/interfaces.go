package domain

import (
	"context"
)

// RecordSource hands the pipeline one snapshot of the six case tables
type RecordSource interface {
	// Name identifies the source in logs, cache keys and dashboards
	Name() string
	// Load materializes a full snapshot. Every call is a fresh batch.
	Load(ctx context.Context) (*RecordSet, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetAnalysisConfig() AnalysisConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
