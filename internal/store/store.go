package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/retry"
	"github.com/loykin/stepmigrate/internal/store/connector"
)

// Run is re-exported from the connector package.
type Run = connector.Run

// Store keeps the runner's bookkeeping (applied versions and run history) in
// the target database and hands out the explicit handle steps run against.
type Store struct {
	DB      *sql.DB
	dialect connector.Dialect
	tn      TableNames
}

// Open connects using cfg, retrying transient connection failures, and
// ensures the bookkeeping schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := NormalizeDriver(cfg.Driver)
	newDialect, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	d := newDialect()
	var driverMap map[string]interface{}
	if cfg.DriverConfig != nil {
		driverMap = cfg.DriverConfig.ToMap()
	}
	dsn, err := d.Load(driverMap)
	if err != nil {
		return nil, err
	}

	logger := common.GetLogger().WithStore(driver)
	logger.Debug("connecting to database", "dsn", common.MaskDSN(dsn))

	var db *sql.DB
	err = retry.Connect(ctx, retry.DefaultBackoff(), d.Transient, func() error {
		var connErr error
		db, connErr = d.Connect(dsn)
		return connErr
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("database connection established")

	st, err := New(db, d, cfg.tableNames())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// New wraps an already open database. Table names are validated but the
// schema is not created; call Ensure for that.
func New(db *sql.DB, d connector.Dialect, th TableNames) (*Store, error) {
	if db == nil || d == nil {
		return nil, errors.New("store requires a database and a dialect")
	}
	for _, name := range []string{th.SchemaMigrations, th.StepRuns} {
		if err := connector.ValidateTableName(name); err != nil {
			return nil, err
		}
	}
	return &Store{DB: db, dialect: d, tn: th}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the dialect's driver name
func (s *Store) Driver() string {
	return s.dialect.DriverName()
}

// TableNames returns the bookkeeping table names in use
func (s *Store) TableNames() TableNames {
	return s.tn
}

// Handle returns the explicit target-database handle passed to steps.
func (s *Store) Handle() dbx.Handle {
	return dbx.Handle{DB: s.DB, Driver: s.dialect.DriverName(), Format: s.dialect.PlaceholderFormat()}
}

func (s *Store) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.PlaceholderFormat())
}

func (s *Store) logger() *common.Logger {
	return common.GetLogger().WithStore(s.dialect.DriverName())
}

// Ensure creates the bookkeeping tables if missing
func (s *Store) Ensure(ctx context.Context) error {
	logger := s.logger()
	logger.Debug("ensuring bookkeeping schema", "tables", []string{s.tn.SchemaMigrations, s.tn.StepRuns})

	for i, q := range s.dialect.EnsureStatements(s.tn) {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	return nil
}

// Apply records that a step version has been applied. Re-applying is a no-op.
func (s *Store) Apply(ctx context.Context, version int, description string) error {
	logger := s.logger().WithVersion(version)

	b := s.builder().Insert(s.tn.SchemaMigrations).
		Columns("version", "description", "applied_at").
		Values(version, description, s.dialect.ConvertTimeToStorage(time.Now()))
	if _, err := s.dialect.InsertIgnore(b).RunWith(s.DB).ExecContext(ctx); err != nil {
		logger.Error("failed to apply migration version", "error", err)
		return fmt.Errorf("failed to apply migration version %d: %w", version, err)
	}
	logger.Debug("migration version recorded")
	return nil
}

// IsApplied checks if a step version has been applied
func (s *Store) IsApplied(ctx context.Context, version int) (bool, error) {
	var one int
	err := s.builder().Select("1").From(s.tn.SchemaMigrations).
		Where(sq.Eq{"version": version}).
		RunWith(s.DB).QueryRowContext(ctx).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check if migration %d is applied: %w", version, err)
	}
	return true, nil
}

// CurrentVersion returns the highest applied version, or 0 if none
func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := s.builder().Select("COALESCE(MAX(version), 0)").From(s.tn.SchemaMigrations).
		RunWith(s.DB).QueryRowContext(ctx).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// ListApplied returns applied versions sorted ascending
func (s *Store) ListApplied(ctx context.Context) ([]int, error) {
	q, args, err := s.builder().Select("version").From(s.tn.SchemaMigrations).OrderBy("version ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration versions: %w", err)
	}
	return versions, nil
}

// RecordRun appends one attempt to the run history. phase and message are
// stored as NULL when empty.
func (s *Store) RecordRun(ctx context.Context, version int, description, status, phase, message string) error {
	logger := s.logger().WithVersion(version)
	logger.Debug("recording step run", "status", status, "phase", phase)

	_, err := s.builder().Insert(s.tn.StepRuns).
		Columns("version", "description", "status", "failed_phase", "message", "ran_at").
		Values(version, description, status, nullable(phase), nullable(message), s.dialect.ConvertTimeToStorage(time.Now())).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		logger.Error("failed to record step run", "error", err)
		return fmt.Errorf("failed to record step run (version %d, status %s): %w", version, status, err)
	}
	return nil
}

// ListRuns returns run history ordered by id ascending
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	q, args, err := s.builder().
		Select("id", "version", "description", "status", "failed_phase", "message", "ran_at").
		From(s.tn.StepRuns).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list step runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var phase, message sql.NullString
		var ranAt interface{}
		if err := rows.Scan(&r.ID, &r.Version, &r.Description, &r.Status, &phase, &message, &ranAt); err != nil {
			return nil, fmt.Errorf("failed to scan step run: %w", err)
		}
		r.Phase = phase.String
		r.Message = message.String
		r.RanAt = s.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step runs: %w", err)
	}
	return runs, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
