package mysql

import (
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	driver "github.com/go-sql-driver/mysql"
	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/store/connector"
)

// DriverName is the store type key for MySQL
const DriverName = "mysql"

// Dialect implements connector.Dialect for MySQL
type Dialect struct{}

// NewDialect creates a new MySQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// DriverName returns the driver name for logging
func (m *Dialect) DriverName() string {
	return DriverName
}

// Load builds a DSN from a config map. parseTime is forced on so timestamps
// scan into time.Time.
func (m *Dialect) Load(config map[string]interface{}) (string, error) {
	var cfg Config
	if err := mapstructure.Decode(config, &cfg); err != nil {
		return "", fmt.Errorf("decode mysql config: %w", err)
	}
	dsn := strings.TrimSpace(cfg.BuildDSN())
	if dsn == "" {
		return "", errors.New("mysql store requires dsn or host")
	}
	parsed, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

// Connect establishes a connection to MySQL with connection pooling
func (m *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultMySQLMaxConnections)
	db.SetMaxIdleConns(constants.DefaultMySQLMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}
	return db, nil
}

// Server error numbers for connections refused while the server is saturated
// or shutting down.
const (
	errServerShutdown     = 1053
	errTooManyConnections = 1040
	errTooManyUserConns   = 1203
	errConnectionKilled   = 1927
)

// Transient accepts a saturated or restarting server and connections the
// driver marked unusable, then falls back to network failures. Access denied
// is final.
func (m *Dialect) Transient(err error) bool {
	if errors.Is(err, driver.ErrInvalidConn) || errors.Is(err, sqldriver.ErrBadConn) {
		return true
	}
	var myErr *driver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errServerShutdown, errTooManyConnections, errTooManyUserConns, errConnectionKilled:
			return true
		}
		return false
	}
	return connector.NetworkError(err)
}

// PlaceholderFormat returns MySQL-style placeholders (?)
func (m *Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// EnsureStatements returns MySQL-specific table creation statements
func (m *Dialect) EnsureStatements(th connector.TableNames) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INT PRIMARY KEY, description VARCHAR(255) NOT NULL DEFAULT '', applied_at DATETIME(6) NOT NULL)", th.SchemaMigrations),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGINT AUTO_INCREMENT PRIMARY KEY, version INT NOT NULL, description VARCHAR(255) NOT NULL DEFAULT '', status VARCHAR(32) NOT NULL, failed_phase VARCHAR(64) NULL, message TEXT NULL, ran_at DATETIME(6) NOT NULL)", th.StepRuns),
	}
}

// InsertIgnore uses MySQL's INSERT IGNORE
func (m *Dialect) InsertIgnore(b sq.InsertBuilder) sq.InsertBuilder {
	return b.Options("IGNORE")
}

// ConvertTimeToStorage converts time to MySQL storage format (native time.Time)
func (m *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertTimeFromStorage converts MySQL DATETIME storage to RFC3339Nano string
func (m *Dialect) ConvertTimeFromStorage(val interface{}) string {
	return connector.FormatStoredTime(val)
}
