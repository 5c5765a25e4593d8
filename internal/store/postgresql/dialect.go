package postgresql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-viper/mapstructure/v2"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/store/connector"
)

// DriverName is the store type key for PostgreSQL
const DriverName = "postgresql"

// Dialect implements connector.Dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// DriverName returns the driver name for logging
func (p *Dialect) DriverName() string {
	return DriverName
}

// Load builds a DSN from a config map
func (p *Dialect) Load(config map[string]interface{}) (string, error) {
	var cfg Config
	if err := mapstructure.Decode(config, &cfg); err != nil {
		return "", fmt.Errorf("decode postgresql config: %w", err)
	}
	dsn := strings.TrimSpace(cfg.BuildDSN())
	if dsn == "" {
		return "", errors.New("postgresql store requires dsn or host")
	}
	return dsn, nil
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// SQLSTATEs a server returns while it cannot take the connection yet.
const (
	sqlStateCannotConnectNow     = "57P03"
	sqlStateTooManyConnections   = "53300"
	sqlStateConnectionExceptions = "08"
)

// Transient accepts server-side refusals that clear on their own and plain
// network failures. Authentication and other server errors are final.
func (p *Dialect) Transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateCannotConnectNow, pgErr.Code == sqlStateTooManyConnections:
			return true
		case strings.HasPrefix(pgErr.Code, sqlStateConnectionExceptions):
			return true
		}
		return false
	}
	return connector.NetworkError(err)
}

// PlaceholderFormat returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

// EnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) EnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, description TEXT NOT NULL DEFAULT '', applied_at TIMESTAMPTZ NOT NULL)", th.SchemaMigrations),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, version INTEGER NOT NULL, description TEXT NOT NULL DEFAULT '', status TEXT NOT NULL, failed_phase TEXT NULL, message TEXT NULL, ran_at TIMESTAMPTZ NOT NULL)", th.StepRuns),
	}
}

// InsertIgnore appends PostgreSQL's ON CONFLICT clause
func (p *Dialect) InsertIgnore(b sq.InsertBuilder) sq.InsertBuilder {
	return b.Suffix("ON CONFLICT (version) DO NOTHING")
}

// ConvertTimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertTimeFromStorage converts PostgreSQL time storage to RFC3339Nano string
func (p *Dialect) ConvertTimeFromStorage(val interface{}) string {
	return connector.FormatStoredTime(val)
}
