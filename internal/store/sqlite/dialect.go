package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/store/connector"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the store type key for SQLite
const DriverName = "sqlite"

// Dialect implements connector.Dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// DriverName returns the driver name for logging
func (d *Dialect) DriverName() string {
	return DriverName
}

// Load builds a DSN from a config map. An explicit dsn wins over path; an
// empty config yields an in-memory database.
func (d *Dialect) Load(config map[string]interface{}) (string, error) {
	var cfg Config
	if err := mapstructure.Decode(config, &cfg); err != nil {
		return "", fmt.Errorf("decode sqlite config: %w", err)
	}
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		return fmt.Sprintf("file:%s?_busy_timeout=%d&%s", path, busyTimeoutMS, foreignKeysParam), nil
	}
	return ":memory:", nil
}

// Connect establishes a connection to SQLite with connection pooling
func (d *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)

	return db, nil
}

// Transient treats a busy or locked database file as temporary. The primary
// result code is the low byte of an extended code.
func (d *Dialect) Transient(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// PlaceholderFormat returns SQLite-style placeholders (?)
func (d *Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// EnsureStatements returns SQLite-specific table creation statements
func (d *Dialect) EnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, description TEXT NOT NULL DEFAULT '', applied_at TEXT NOT NULL)", th.SchemaMigrations),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, version INTEGER NOT NULL, description TEXT NOT NULL DEFAULT '', status TEXT NOT NULL, failed_phase TEXT NULL, message TEXT NULL, ran_at TEXT NOT NULL)", th.StepRuns),
	}
}

// InsertIgnore uses SQLite's OR IGNORE conflict clause
func (d *Dialect) InsertIgnore(b sq.InsertBuilder) sq.InsertBuilder {
	return b.Options("OR IGNORE")
}

// ConvertTimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (d *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConvertTimeFromStorage converts SQLite string storage to RFC3339Nano string
func (d *Dialect) ConvertTimeFromStorage(val interface{}) string {
	return connector.FormatStoredTime(val)
}
