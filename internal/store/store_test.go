package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loykin/stepmigrate/internal/store/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookkeeping.db")
	st, err := Open(context.Background(), Config{Driver: DriverSqlite, DriverConfig: &sqlite.Config{Path: path}})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported store driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestOpen_DefaultsToSqliteMemory(t *testing.T) {
	st, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	if st.Driver() != DriverSqlite {
		t.Errorf("Driver() = %q, want sqlite", st.Driver())
	}
	if st.TableNames() != DefaultTableNames() {
		t.Errorf("TableNames() = %+v, want defaults", st.TableNames())
	}
}

func TestStore_ApplyAndVersions(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	cur, err := st.CurrentVersion(ctx)
	if err != nil || cur != 0 {
		t.Fatalf("CurrentVersion on empty store => %d,%v; want 0,nil", cur, err)
	}

	for _, v := range []int{100, 550, 300} {
		if err := st.Apply(ctx, v, "step"); err != nil {
			t.Fatalf("Apply(%d): %v", v, err)
		}
	}
	// idempotent
	if err := st.Apply(ctx, 550, "again"); err != nil {
		t.Fatalf("re-Apply(550): %v", err)
	}

	ok, err := st.IsApplied(ctx, 300)
	if err != nil || !ok {
		t.Fatalf("IsApplied(300) => %v,%v; want true,nil", ok, err)
	}
	ok, err = st.IsApplied(ctx, 42)
	if err != nil || ok {
		t.Fatalf("IsApplied(42) => %v,%v; want false,nil", ok, err)
	}

	cur, err = st.CurrentVersion(ctx)
	if err != nil || cur != 550 {
		t.Fatalf("CurrentVersion => %d,%v; want 550,nil", cur, err)
	}
	applied, err := st.ListApplied(ctx)
	if err != nil {
		t.Fatalf("ListApplied: %v", err)
	}
	if len(applied) != 3 || applied[0] != 100 || applied[1] != 300 || applied[2] != 550 {
		t.Fatalf("ListApplied = %v, want [100 300 550]", applied)
	}
}

func TestStore_RecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.RecordRun(ctx, 550, "convert profile measures", "failed", "catalog-rename", "constraint violation"); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := st.RecordRun(ctx, 550, "convert profile measures", "succeeded", "", ""); err != nil {
		t.Fatalf("RecordRun succeeded: %v", err)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	first, second := runs[0], runs[1]
	if first.Status != "failed" || first.Phase != "catalog-rename" || first.Message != "constraint violation" {
		t.Errorf("unexpected first run: %+v", first)
	}
	if second.Status != "succeeded" || second.Phase != "" || second.Message != "" {
		t.Errorf("unexpected second run: %+v", second)
	}
	if first.RanAt == "" || first.ID >= second.ID {
		t.Errorf("runs not ordered or missing timestamps: %+v %+v", first, second)
	}
}

func TestStore_CustomTableNames(t *testing.T) {
	ctx := context.Background()
	th := PrefixedTableNames("sonar", "", "")
	if th.SchemaMigrations != "sonar_schema_migrations" || th.StepRuns != "sonar_step_runs" {
		t.Fatalf("PrefixedTableNames = %+v", th)
	}
	st, err := Open(ctx, Config{Driver: "sqlite3", TableNames: th})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Apply(ctx, 1, "x"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var n int
	if err := st.DB.QueryRow(`SELECT COUNT(*) FROM sonar_schema_migrations`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("prefixed table not used: n=%d err=%v", n, err)
	}
}

func TestNew_RejectsUnsafeTableNames(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = New(db, sqlite.NewDialect(), TableNames{SchemaMigrations: "x; DROP TABLE y", StepRuns: "runs"})
	if err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func TestStore_ApplyPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	st, err := New(db, sqlite.NewDialect(), DefaultTableNames())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO schema_migrations")).WillReturnError(boom)

	err = st.Apply(context.Background(), 550, "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNormalizeDriver(t *testing.T) {
	tests := map[string]string{
		"":           DriverSqlite,
		"SQLite3":    DriverSqlite,
		" postgres ": DriverPostgresql,
		"pg":         DriverPostgresql,
		"MariaDB":    DriverMySQL,
		"oracle":     "oracle",
	}
	for in, want := range tests {
		if got := NormalizeDriver(in); got != want {
			t.Errorf("NormalizeDriver(%q) = %q, want %q", in, got, want)
		}
	}
}
