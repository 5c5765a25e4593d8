package main

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/loykin/stepmigrate"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/store"
)

// StoreFactory handles the creation of store configurations
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateStoreConfig maps the YAML store section onto a library store config.
// An empty type selects SQLite.
func (f *StoreFactory) CreateStoreConfig(config StoreConfig) (stepmigrate.StoreConfig, error) {
	tableNames := store.PrefixedTableNames(config.TablePrefix, config.TableSchemaMigrations, config.TableStepRuns)

	out := stepmigrate.StoreConfig{TableNames: tableNames}
	switch driver := store.NormalizeDriver(config.Type); driver {
	case stepmigrate.DriverPostgresql:
		pg := config.Postgres
		out.Driver = driver
		out.DriverConfig = &pg
	case stepmigrate.DriverMySQL:
		my := config.MySQL
		out.Driver = driver
		out.DriverConfig = &my
	case stepmigrate.DriverSqlite:
		out.Driver = driver
		out.DriverConfig = &stepmigrate.SqliteConfig{
			Path: cmp.Or(strings.TrimSpace(config.SQLite.Path), constants.DefaultSQLiteFileName),
		}
	default:
		return stepmigrate.StoreConfig{}, fmt.Errorf("unsupported store type %q (valid: sqlite, postgresql, mysql)", config.Type)
	}
	return out, nil
}
