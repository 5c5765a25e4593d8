package store

import (
	"strings"

	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/store/connector"
	"github.com/loykin/stepmigrate/internal/store/mysql"
	"github.com/loykin/stepmigrate/internal/store/postgresql"
	"github.com/loykin/stepmigrate/internal/store/sqlite"
)

// Supported driver keys
const (
	DriverSqlite     = sqlite.DriverName
	DriverPostgresql = postgresql.DriverName
	DriverMySQL      = mysql.DriverName
)

// TableNames is re-exported so callers do not need the connector package.
type TableNames = connector.TableNames

type Config struct {
	Driver       string `mapstructure:"driver"`
	TableNames   TableNames
	DriverConfig DriverConfig
}

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// DefaultTableNames returns the unprefixed bookkeeping table names.
func DefaultTableNames() TableNames {
	return TableNames{
		SchemaMigrations: constants.DefaultSchemaMigrationsTable,
		StepRuns:         constants.DefaultStepRunsTable,
	}
}

// PrefixedTableNames applies prefix to any name not explicitly set.
func PrefixedTableNames(prefix, schemaMigrations, stepRuns string) TableNames {
	prefix = strings.TrimSpace(prefix)
	sm, sr := strings.TrimSpace(schemaMigrations), strings.TrimSpace(stepRuns)
	if prefix != "" {
		if sm == "" {
			sm = prefix + constants.SchemaMigrationsSuffix
		}
		if sr == "" {
			sr = prefix + constants.StepRunsSuffix
		}
	}
	return TableNames{SchemaMigrations: sm, StepRuns: sr}
}

func (c Config) tableNames() TableNames {
	th := c.TableNames
	def := DefaultTableNames()
	if th.SchemaMigrations == "" {
		th.SchemaMigrations = def.SchemaMigrations
	}
	if th.StepRuns == "" {
		th.StepRuns = def.StepRuns
	}
	return th
}

var dialects = map[string]func() connector.Dialect{
	DriverSqlite:     func() connector.Dialect { return sqlite.NewDialect() },
	DriverPostgresql: func() connector.Dialect { return postgresql.NewDialect() },
	DriverMySQL:      func() connector.Dialect { return mysql.NewDialect() },
}

// NormalizeDriver maps config spellings onto driver keys. Empty means sqlite.
func NormalizeDriver(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "sqlite", "sqlite3":
		return DriverSqlite
	case "postgres", "postgresql", "pg":
		return DriverPostgresql
	case "mysql", "mariadb":
		return DriverMySQL
	default:
		return s
	}
}
