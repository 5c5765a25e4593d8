package migrations

import (
	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/procedure"
	"github.com/loykin/stepmigrate/internal/procedure/v44"
	"github.com/loykin/stepmigrate/internal/step"
)

const (
	V550Version     = 550
	V550Description = "convert profile measures"

	// metric renamed once its measures hold JSON profile descriptions
	legacyProfileMetric  = v44.ProfileMetricName
	qualityProfileMetric = "quality_profiles"
)

// ProcedureStep is a step together with the procedure ids it delegates to.
type ProcedureStep struct {
	*step.Versioned
	ids []string
}

// ProcedureIDs returns the procedure ids the step resolves at run time.
func (s *ProcedureStep) ProcedureIDs() []string {
	return append([]string(nil), s.ids...)
}

// V550ConvertProfileMeasures converts profile measures through the v44
// procedure and then renames the "profile" metric to "quality_profiles".
func V550ConvertProfileMeasures(inv *procedure.Invoker, acc *catalog.Accessor, policy step.TxPolicy) *ProcedureStep {
	return &ProcedureStep{
		Versioned: step.New(V550Version, V550Description, policy,
			step.InvokeProcedure(inv, v44.ConvertProfileMeasuresID),
			step.RenameCatalogRow(acc, legacyProfileMetric, qualityProfileMetric),
		),
		ids: []string{v44.ConvertProfileMeasuresID},
	}
}
