// Package testutil builds throwaway SQLite databases with the slice of the
// quality-metrics schema the migrations touch.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/store/sqlite"
)

var schema = []string{
	`CREATE TABLE metrics (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(64) NOT NULL, description VARCHAR(255) NULL, domain VARCHAR(64) NULL, val_type VARCHAR(8) NULL)`,
	`CREATE TABLE rules_profiles (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(100) NOT NULL, language VARCHAR(20) NULL)`,
	`CREATE TABLE project_measures (id INTEGER PRIMARY KEY AUTOINCREMENT, metric_id INTEGER NOT NULL, snapshot_id INTEGER NULL, value DECIMAL(38,20) NULL, text_value VARCHAR(4000) NULL)`,
}

// OpenSonarDB returns a file-backed SQLite database with the metrics,
// rules_profiles and project_measures tables, closed on test cleanup.
func OpenSonarDB(t testing.TB) (*sql.DB, dbx.Handle) {
	t.Helper()
	return OpenSonarDBAt(t, filepath.Join(t.TempDir(), "sonar.db"))
}

// OpenSonarDBAt is OpenSonarDB for a caller-chosen file path.
func OpenSonarDBAt(t testing.TB, path string) (*sql.DB, dbx.Handle) {
	t.Helper()
	d := sqlite.NewDialect()
	dsn, err := d.Load(map[string]interface{}{"path": path})
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	db, err := d.Connect(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db, dbx.Handle{DB: db, Driver: sqlite.DriverName, Format: sq.Question}
}

// InsertMetric adds a metrics row and returns its id.
func InsertMetric(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO metrics(name, description, domain, val_type) VALUES(?, ?, 'General', 'INT')`, name, name+" metric")
	if err != nil {
		t.Fatalf("insert metric %q: %v", name, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// InsertProfile adds a rules_profiles row and returns its id.
func InsertProfile(t testing.TB, db *sql.DB, name, language string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO rules_profiles(name, language) VALUES(?, ?)`, name, language)
	if err != nil {
		t.Fatalf("insert profile %q: %v", name, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// InsertMeasure adds a project_measures row holding a numeric value.
func InsertMeasure(t testing.TB, db *sql.DB, metricID int64, value sql.NullFloat64) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO project_measures(metric_id, snapshot_id, value) VALUES(?, 1, ?)`, metricID, value)
	if err != nil {
		t.Fatalf("insert measure: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// BlockRenameTo installs a trigger that aborts any update setting metrics.name
// to name, simulating a constraint violation on the catalog write.
func BlockRenameTo(t testing.TB, db *sql.DB, name string) {
	t.Helper()
	q := `CREATE TRIGGER block_rename BEFORE UPDATE OF name ON metrics WHEN NEW.name = '` + name + `' BEGIN SELECT RAISE(ABORT, 'rename blocked by constraint'); END`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

// MetricNames returns every metric name ordered by id.
func MetricNames(t testing.TB, db *sql.DB) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), `SELECT name FROM metrics ORDER BY id`)
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan metric: %v", err)
		}
		names = append(names, n)
	}
	return names
}

// CountingDB wraps a DBTX and counts the statements sent through it.
type CountingDB struct {
	dbx.DBTX
	Execs   int
	Queries int
}

func (c *CountingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.Execs++
	return c.DBTX.ExecContext(ctx, query, args...)
}

func (c *CountingDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.Queries++
	return c.DBTX.QueryContext(ctx, query, args...)
}

func (c *CountingDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.Queries++
	return c.DBTX.QueryRowContext(ctx, query, args...)
}

// Statements returns the total number of statements seen.
func (c *CountingDB) Statements() int { return c.Execs + c.Queries }
