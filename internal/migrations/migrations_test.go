package migrations

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/procedure/v44"
	"github.com/loykin/stepmigrate/internal/step"
	"github.com/loykin/stepmigrate/internal/testutil"
)

func bundled(t *testing.T, policy step.TxPolicy) (*procedure.Registry, []step.Step) {
	t.Helper()
	reg := procedure.NewRegistry()
	if err := RegisterProcedures(reg); err != nil {
		t.Fatalf("RegisterProcedures: %v", err)
	}
	steps, err := All(Deps{Invoker: procedure.NewInvoker(reg), Policy: policy})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	return reg, steps
}

func TestAll(t *testing.T) {
	reg, steps := bundled(t, step.Independent)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	s := steps[0]
	if s.Version() != 550 || s.Description() != "convert profile measures" {
		t.Errorf("unexpected step %d %q", s.Version(), s.Description())
	}
	if err := CheckResolvable(reg, steps); err != nil {
		t.Errorf("CheckResolvable: %v", err)
	}

	vs, ok := s.(*ProcedureStep)
	if !ok {
		t.Fatalf("step type %T", s)
	}
	var phases []step.Phase
	for _, a := range vs.Actions() {
		phases = append(phases, a.Phase)
	}
	if !reflect.DeepEqual(phases, []step.Phase{step.PhaseExternalTransform, step.PhaseCatalogRename}) {
		t.Errorf("phases = %v", phases)
	}
}

func TestAll_RequiresInvoker(t *testing.T) {
	if _, err := All(Deps{}); err == nil {
		t.Fatal("expected error without invoker")
	}
}

func TestCheckResolvable_ReportsMissing(t *testing.T) {
	empty := procedure.NewRegistry()
	acc, _ := catalog.New("")
	steps := []step.Step{V550ConvertProfileMeasures(procedure.NewInvoker(empty), acc, step.Independent)}

	err := CheckResolvable(empty, steps)
	if !errors.Is(err, procedure.ErrUnresolvedProcedure) {
		t.Fatalf("expected unresolved procedure, got %v", err)
	}
	if merr, ok := err.(*multierror.Error); !ok || len(merr.Errors) != 1 {
		t.Errorf("expected one aggregated error, got %v", err)
	}
}

func TestV550_EndToEnd(t *testing.T) {
	for _, policy := range []step.TxPolicy{step.Independent, step.Atomic} {
		t.Run(policy.String(), func(t *testing.T) {
			db, h := testutil.OpenSonarDB(t)
			metric := testutil.InsertMetric(t, db, "profile")
			profile := testutil.InsertProfile(t, db, "Sonar way", "java")
			m := testutil.InsertMeasure(t, db, metric, sql.NullFloat64{Float64: float64(profile), Valid: true})

			_, steps := bundled(t, policy)
			if err := steps[0].Execute(context.Background(), h); err != nil {
				t.Fatalf("Execute: %v", err)
			}

			if names := testutil.MetricNames(t, db); !reflect.DeepEqual(names, []string{"quality_profiles"}) {
				t.Errorf("metric names = %v", names)
			}
			var text sql.NullString
			if err := db.QueryRow(`SELECT text_value FROM project_measures WHERE id = ?`, m).Scan(&text); err != nil {
				t.Fatalf("load measure: %v", err)
			}
			if text.String != `[{"id":1,"name":"Sonar way","language":"java"}]` {
				t.Errorf("text_value = %q", text.String)
			}
		})
	}
}

func TestV550_ProfileMetricAbsent(t *testing.T) {
	db, h := testutil.OpenSonarDB(t)
	testutil.InsertMetric(t, db, "ncloc")

	_, steps := bundled(t, step.Independent)
	if err := steps[0].Execute(context.Background(), h); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if names := testutil.MetricNames(t, db); !reflect.DeepEqual(names, []string{"ncloc"}) {
		t.Errorf("metric names = %v", names)
	}
}

func TestV550_ProcedureID(t *testing.T) {
	acc, _ := catalog.New("")
	s := V550ConvertProfileMeasures(procedure.NewInvoker(procedure.NewRegistry()), acc, step.Independent)
	if ids := s.ProcedureIDs(); len(ids) != 1 || ids[0] != v44.ConvertProfileMeasuresID {
		t.Errorf("ProcedureIDs() = %v", ids)
	}
}
