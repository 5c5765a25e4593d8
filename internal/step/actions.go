package step

import (
	"context"
	"fmt"

	"github.com/loykin/stepmigrate/internal/catalog"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/procedure"
)

// InvokeProcedure returns the action delegating to the procedure registered
// under id. The id is resolved before the step starts.
func InvokeProcedure(inv *procedure.Invoker, id string) Action {
	return Action{
		Phase:   PhaseExternalTransform,
		Summary: "execute " + id,
		Check:   func() error { return inv.Resolve(id) },
		Run: func(ctx context.Context, h dbx.Handle) error {
			return inv.Run(ctx, h, id)
		},
	}
}

// RenameCatalogRow returns the action renaming the catalog row named from to
// to. An absent row is not an error.
func RenameCatalogRow(acc *catalog.Accessor, from, to string) Action {
	return Action{
		Phase:   PhaseCatalogRename,
		Summary: fmt.Sprintf("rename %s.name %q to %q", acc.Table(), from, to),
		Run: func(ctx context.Context, h dbx.Handle) error {
			logger := common.GetLogger().WithComponent("step").WithPhase(string(PhaseCatalogRename))
			m, ok, err := acc.FindByName(ctx, h, from)
			if err != nil {
				return err
			}
			if !ok {
				logger.Info("catalog row absent, nothing to rename", "table", acc.Table(), "name", from)
				return nil
			}
			if err := acc.Rename(ctx, h, m.ID, to); err != nil {
				return err
			}
			logger.Info("catalog row renamed", "table", acc.Table(), "id", m.ID, "from", from, "to", to)
			return nil
		},
	}
}
