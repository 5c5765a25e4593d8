// Package migrations lists the bundled migration steps and the procedures
// they depend on.
package migrations

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/procedure/v44"
	"github.com/loykin/stepmigrate/internal/step"
)

// Deps carries what the bundled steps are built from.
type Deps struct {
	Invoker *procedure.Invoker
	Catalog *catalog.Accessor
	Policy  step.TxPolicy
}

// procedureSteps is implemented by steps that delegate to registered procedures.
type procedureSteps interface {
	ProcedureIDs() []string
}

// RegisterProcedures installs every bundled procedure in reg.
func RegisterProcedures(reg *procedure.Registry) error {
	return v44.Register(reg, nil)
}

// All returns the bundled steps in ascending version order.
func All(deps Deps) ([]step.Step, error) {
	if deps.Invoker == nil {
		return nil, errors.New("migrations require a procedure invoker")
	}
	if deps.Catalog == nil {
		acc, err := catalog.New("")
		if err != nil {
			return nil, err
		}
		deps.Catalog = acc
	}
	steps := []step.Step{
		V550ConvertProfileMeasures(deps.Invoker, deps.Catalog, deps.Policy),
	}
	if err := step.Validate(steps); err != nil {
		return nil, err
	}
	return step.Sort(steps), nil
}

// CheckResolvable reports every procedure id referenced by steps that reg
// cannot resolve.
func CheckResolvable(reg *procedure.Registry, steps []step.Step) error {
	var result *multierror.Error
	for _, s := range steps {
		ps, ok := s.(procedureSteps)
		if !ok {
			continue
		}
		for _, id := range ps.ProcedureIDs() {
			if _, err := reg.Lookup(id); err != nil {
				result = multierror.Append(result, fmt.Errorf("step %d: %w", s.Version(), err))
			}
		}
	}
	return result.ErrorOrNil()
}
