package step

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/testutil"
)

const transformID = "org.example.v1.Transform"

// markTransform records that the bulk transform ran by inserting a profile row.
func markTransform(ctx context.Context, h dbx.Handle) error {
	_, err := h.DB.ExecContext(ctx, `INSERT INTO rules_profiles(name, language) VALUES('transformed', 'java')`)
	return err
}

func transformed(t *testing.T, db *sql.DB) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rules_profiles WHERE name = 'transformed'`).Scan(&n); err != nil {
		t.Fatalf("count transform marker: %v", err)
	}
	return n > 0
}

func newStep(t *testing.T, proc procedure.Procedure, policy TxPolicy) *Versioned {
	t.Helper()
	reg := procedure.NewRegistry()
	if proc != nil {
		reg.MustRegister(transformID, proc)
	}
	acc, err := catalog.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return New(550, "convert profile measures", policy,
		InvokeProcedure(procedure.NewInvoker(reg), transformID),
		RenameCatalogRow(acc, "profile", "quality_profiles"),
	)
}

func TestExecute_AbsentRowMakesNoWrites(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "ncloc")

	counting := &testutil.CountingDB{DBTX: db}
	s := newStep(t, procedure.Func(func(context.Context, dbx.Handle) error { return nil }), Independent)
	if err := s.Execute(context.Background(), h.WithDB(counting)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if counting.Execs != 0 {
		t.Errorf("expected zero writes, got %d", counting.Execs)
	}
	if names := testutil.MetricNames(t, db); !reflect.DeepEqual(names, []string{"ncloc"}) {
		t.Errorf("metric names = %v", names)
	}
	if s.State() != Succeeded {
		t.Errorf("state = %v, want succeeded", s.State())
	}
}

func TestExecute_RenamesPresentRow(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "ncloc")
	testutil.InsertMetric(t, db, "profile")

	s := newStep(t, procedure.Func(markTransform), Independent)
	if err := s.Execute(context.Background(), h); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if names := testutil.MetricNames(t, db); !reflect.DeepEqual(names, []string{"ncloc", "quality_profiles"}) {
		t.Errorf("metric names = %v", names)
	}
	if !transformed(t, db) {
		t.Error("transform did not run")
	}
}

func TestExecute_TransformFailureSkipsRename(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")

	boom := errors.New("bulk update failed")
	s := newStep(t, procedure.Func(func(context.Context, dbx.Handle) error { return boom }), Independent)
	err := s.Execute(context.Background(), h)

	if !errors.Is(err, procedure.ErrExecutionFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected execution failure wrapping cause, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Phase != PhaseExternalTransform || len(se.Committed) != 0 || se.Version != 550 {
		t.Errorf("unexpected step error: %+v", se)
	}
	if names := testutil.MetricNames(t, db); names[0] != "profile" {
		t.Errorf("catalog changed after failed transform: %v", names)
	}
	if s.State() != Failed {
		t.Errorf("state = %v, want failed", s.State())
	}
}

func TestExecute_RenameFailureKeepsTransform(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")
	testutil.BlockRenameTo(t, db, "quality_profiles")

	s := newStep(t, procedure.Func(markTransform), Independent)
	err := s.Execute(context.Background(), h)

	if !errors.Is(err, catalog.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Phase != PhaseCatalogRename {
		t.Errorf("phase = %s, want %s", se.Phase, PhaseCatalogRename)
	}
	if !reflect.DeepEqual(se.Committed, []Phase{PhaseExternalTransform}) {
		t.Errorf("committed = %v", se.Committed)
	}
	if !transformed(t, db) {
		t.Error("transform effects were lost")
	}
	if names := testutil.MetricNames(t, db); names[0] != "profile" {
		t.Errorf("row changed despite failed rename: %v", names)
	}
}

func TestExecute_CallerTransactionCommitsNothing(t *testing.T) {
	tests := []struct {
		name   string
		policy TxPolicy
	}{
		{"independent", Independent},
		{"atomic", Atomic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, h := testutil.OpenSonarDB(t)
			testutil.InsertMetric(t, db, "profile")
			testutil.BlockRenameTo(t, db, "quality_profiles")

			ctx := context.Background()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			s := newStep(t, procedure.Func(markTransform), tt.policy)
			err = s.Execute(ctx, h.WithDB(tx))

			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if len(se.Committed) != 0 {
				t.Errorf("committed = %v inside a caller transaction", se.Committed)
			}
			if err := tx.Rollback(); err != nil {
				t.Fatalf("rollback: %v", err)
			}
			if transformed(t, db) {
				t.Error("transform survived the caller's rollback")
			}
		})
	}
}

func TestExecute_StateTransitions(t *testing.T) {
	tests := []struct {
		name string
		proc procedure.Procedure
		want []State
	}{
		{
			name: "success",
			proc: procedure.Func(markTransform),
			want: []State{Running, Succeeded},
		},
		{
			name: "unresolved procedure",
			proc: nil,
			want: []State{Running, Failed},
		},
		{
			name: "action failure",
			proc: procedure.Func(func(context.Context, dbx.Handle) error { return errors.New("boom") }),
			want: []State{Running, Failed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, h := testutil.OpenSonarDB(t)
			testutil.InsertMetric(t, db, "profile")

			s := newStep(t, tt.proc, Independent)
			if s.State() != NotRun {
				t.Fatalf("initial state = %s", s.State())
			}
			var seen []State
			s.observe = func(st State) { seen = append(seen, st) }
			_ = s.Execute(context.Background(), h)

			if !reflect.DeepEqual(seen, tt.want) {
				t.Errorf("transitions = %v, want %v", seen, tt.want)
			}
			if got := s.State(); got != tt.want[len(tt.want)-1] {
				t.Errorf("final state = %s", got)
			}
		})
	}
}

func TestExecute_AtomicRollsBackTransform(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")
	testutil.BlockRenameTo(t, db, "quality_profiles")

	s := newStep(t, procedure.Func(markTransform), Atomic)
	err := s.Execute(context.Background(), h)

	var se *Error
	if !errors.As(err, &se) || !errors.Is(err, catalog.ErrPersistence) {
		t.Fatalf("expected step persistence failure, got %v", err)
	}
	if len(se.Committed) != 0 {
		t.Errorf("atomic failure reported committed phases %v", se.Committed)
	}
	if transformed(t, db) {
		t.Error("transform survived atomic rollback")
	}
}

func TestExecute_AtomicCommits(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")

	s := newStep(t, procedure.Func(markTransform), Atomic)
	if err := s.Execute(context.Background(), h); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !transformed(t, db) {
		t.Error("transform was not committed")
	}
	if names := testutil.MetricNames(t, db); names[0] != "quality_profiles" {
		t.Errorf("metric names = %v", names)
	}
}

func TestExecute_AtomicRequiresTransactions(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	s := newStep(t, procedure.Func(markTransform), Atomic)

	err := s.Execute(context.Background(), h.WithDB(&testutil.CountingDB{DBTX: db}))
	var se *Error
	if !errors.As(err, &se) || !errors.Is(err, dbx.ErrTxUnsupported) {
		t.Fatalf("expected ErrTxUnsupported, got %v", err)
	}
	if se.Phase != PhaseTransaction {
		t.Errorf("phase = %s", se.Phase)
	}
}

func TestExecute_DuplicateRowsRejected(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")
	testutil.InsertMetric(t, db, "profile")

	s := newStep(t, procedure.Func(markTransform), Independent)
	err := s.Execute(context.Background(), h)
	if !errors.Is(err, catalog.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if names := testutil.MetricNames(t, db); !reflect.DeepEqual(names, []string{"profile", "profile"}) {
		t.Errorf("duplicate rows changed: %v", names)
	}
}

func TestExecute_UnresolvedProcedureTouchesNothing(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "profile")

	counting := &testutil.CountingDB{DBTX: db}
	s := newStep(t, nil, Independent)
	err := s.Execute(context.Background(), h.WithDB(counting))

	if !errors.Is(err, procedure.ErrUnresolvedProcedure) {
		t.Fatalf("expected ErrUnresolvedProcedure, got %v", err)
	}
	if counting.Statements() != 0 {
		t.Errorf("expected no database access, got %d statements", counting.Statements())
	}
	var se *Error
	if errors.As(err, &se) && se.Phase != PhaseExternalTransform {
		t.Errorf("phase = %s", se.Phase)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	_, h := testutil.OpenSonarDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStep(t, procedure.Func(markTransform), Independent)
	if err := s.Execute(ctx, h); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{
		Version:     550,
		Description: "convert profile measures",
		Phase:       PhaseCatalogRename,
		Committed:   []Phase{PhaseExternalTransform},
		Err:         errors.New("constraint"),
	}
	want := "step 550 (convert profile measures) failed in phase catalog-rename after committing external-transform: constraint"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestNew_CopiesActions(t *testing.T) {
	actions := []Action{{Phase: PhaseExternalTransform}}
	s := New(1, "one", Independent, actions...)
	actions[0].Phase = PhaseCatalogRename
	if s.Actions()[0].Phase != PhaseExternalTransform {
		t.Error("step shares the caller's action slice")
	}
	if s.State() != NotRun {
		t.Errorf("initial state = %v", s.State())
	}
}
