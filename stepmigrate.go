package stepmigrate

import (
	"context"
	"fmt"

	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/migrations"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/runner"
	"github.com/loykin/stepmigrate/internal/step"
	"github.com/loykin/stepmigrate/internal/store"
	"github.com/loykin/stepmigrate/internal/store/mysql"
	"github.com/loykin/stepmigrate/internal/store/postgresql"
	"github.com/loykin/stepmigrate/internal/store/sqlite"
	"github.com/loykin/stepmigrate/pkg/status"
)

// Re-export commonly used types for public API

// Step is a versioned migration unit.
type Step = step.Step

// Handle is the explicit target-database handle steps run against.
type Handle = dbx.Handle

// Procedure is a bulk transformation resolvable by id.
type Procedure = procedure.Procedure

// ProcedureFunc adapts a function to Procedure.
type ProcedureFunc = procedure.Func

// Registry maps procedure ids to implementations.
type Registry = procedure.Registry

// ProgressReporter receives progress from long-running procedures.
type ProgressReporter = procedure.Reporter

// TxPolicy selects whether the phases of a step share one transaction.
type TxPolicy = step.TxPolicy

const (
	Independent = step.Independent
	Atomic      = step.Atomic
)

// StepError reports the failed phase of a step.
type StepError = step.Error

// Result describes one planned or executed step.
type Result = runner.Result

// StatusInfo aggregates the current version, applied versions and run history.
type StatusInfo = status.Info

// Store configuration types
type (
	StoreConfig    = store.Config
	TableNames     = store.TableNames
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
	MySQLConfig    = mysql.Config
)

const (
	DriverSqlite     = store.DriverSqlite
	DriverPostgresql = store.DriverPostgresql
	DriverMySQL      = store.DriverMySQL
)

// Error classes
var (
	ErrUnresolvedProcedure = procedure.ErrUnresolvedProcedure
	ErrExecutionFailed     = procedure.ErrExecutionFailed
	ErrPersistence         = catalog.ErrPersistence
	ErrDuplicateName       = catalog.ErrDuplicateName
	ErrTxUnsupported       = dbx.ErrTxUnsupported
)

// Logger types
type (
	Logger   = common.Logger
	LogLevel = common.LogLevel
)

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// SetDefaultLogger replaces the logger used across the library.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// NewLogger creates a text logger writing to stdout.
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// NewJSONLogger creates a JSON logger writing to stdout.
func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

// NewRegistry returns a registry holding every bundled procedure.
func NewRegistry() (*Registry, error) {
	reg := procedure.NewRegistry()
	if err := migrations.RegisterProcedures(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// WithProgress installs r on ctx for procedures that report progress.
func WithProgress(ctx context.Context, r ProgressReporter) context.Context {
	return procedure.WithProgress(ctx, r)
}

// Migrator applies the bundled steps, plus any Extra ones, to the store
// described by StoreConfig.
type Migrator struct {
	StoreConfig StoreConfig
	Policy      TxPolicy
	// Registry defaults to NewRegistry when nil.
	Registry *Registry
	// MetricsTable defaults to "metrics".
	MetricsTable string
	Extra        []Step
	DryRun       bool
}

// Steps returns every step the migrator knows, in ascending version order.
func (m *Migrator) Steps() ([]Step, error) {
	reg, err := m.registry()
	if err != nil {
		return nil, err
	}
	return m.steps(reg)
}

func (m *Migrator) registry() (*Registry, error) {
	if m.Registry != nil {
		return m.Registry, nil
	}
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	m.Registry = reg
	return reg, nil
}

func (m *Migrator) steps(reg *Registry) ([]Step, error) {
	acc, err := catalog.New(m.MetricsTable)
	if err != nil {
		return nil, err
	}
	steps, err := migrations.All(migrations.Deps{
		Invoker: procedure.NewInvoker(reg),
		Catalog: acc,
		Policy:  m.Policy,
	})
	if err != nil {
		return nil, err
	}
	all := append(append([]Step(nil), steps...), m.Extra...)
	if err := step.Validate(all); err != nil {
		return nil, err
	}
	return step.Sort(all), nil
}

// MigrateUp applies pending steps up to targetVersion (0 = all).
func (m *Migrator) MigrateUp(ctx context.Context, targetVersion int) ([]*Result, error) {
	reg, err := m.registry()
	if err != nil {
		return nil, err
	}
	steps, err := m.steps(reg)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckResolvable(reg, steps); err != nil {
		return nil, fmt.Errorf("unresolvable procedures: %w", err)
	}

	st, err := store.Open(ctx, m.StoreConfig)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	r := &runner.Runner{Store: st, Steps: steps, DryRun: m.DryRun}
	return r.Up(ctx, targetVersion)
}

// Pending lists steps not yet applied to the store.
func (m *Migrator) Pending(ctx context.Context) ([]Step, error) {
	steps, err := m.Steps()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, m.StoreConfig)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()
	return (&runner.Runner{Store: st, Steps: steps}).Pending(ctx)
}

// Status reads the current version and run history from the store.
func (m *Migrator) Status(ctx context.Context) (StatusInfo, error) {
	return status.FromConfig(ctx, m.StoreConfig)
}
