package constants

import "time"

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// MySQL defaults
	DefaultMySQLPort = 3306

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultMySQLMaxConnections    = 10
	DefaultMySQLMaxIdleConns      = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// Default bookkeeping table names
	DefaultSchemaMigrationsTable = "schema_migrations"
	DefaultStepRunsTable         = "step_runs"

	// Table name suffixes when using prefixes
	SchemaMigrationsSuffix = "_schema_migrations"
	StepRunsSuffix         = "_step_runs"

	// Default target schema tables
	DefaultMetricsTable         = "metrics"
	DefaultProjectMeasuresTable = "project_measures"
	DefaultRulesProfilesTable   = "rules_profiles"

	// DefaultSQLiteFileName is used when a sqlite store is selected without a path
	DefaultSQLiteFileName = "stepmigrate.db"
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)
