package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"syscall"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Run is a single execution record from the step_runs table.
// Phase and Message are empty for successful runs.
type Run struct {
	ID          int64
	Version     int
	Description string
	Status      string
	Phase       string
	Message     string
	RanAt       string // RFC3339Nano, UTC
}

// TableNames represents the bookkeeping table names
type TableNames struct {
	SchemaMigrations string
	StepRuns         string
}

// Dialect captures everything that differs between the supported databases.
type Dialect interface {
	// DriverName is the store type used in config and logs.
	DriverName() string
	// Load turns a driver config map into a DSN.
	Load(config map[string]interface{}) (string, error)
	// Connect opens and pings the database with driver-specific pool settings.
	Connect(dsn string) (*sql.DB, error)
	// Transient reports whether a Connect error is worth dialing again.
	Transient(err error) bool
	PlaceholderFormat() sq.PlaceholderFormat
	EnsureStatements(th TableNames) []string
	// InsertIgnore makes an insert a no-op when the primary key already exists.
	InsertIgnore(b sq.InsertBuilder) sq.InsertBuilder
	ConvertTimeToStorage(t time.Time) interface{}
	ConvertTimeFromStorage(val interface{}) string
}

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName rejects identifiers that cannot be interpolated into SQL safely.
func ValidateTableName(name string) error {
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// FormatStoredTime normalizes the timestamp representations returned by the
// supported drivers (time.Time, RFC3339 text, raw bytes) to RFC3339Nano UTC.
func FormatStoredTime(val interface{}) string {
	switch v := val.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// NetworkError reports dial and socket failures that clear once the server
// is reachable. Context cancellation is never one of them.
func NetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
