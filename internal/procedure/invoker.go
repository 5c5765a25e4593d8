package procedure

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
)

// ExecutionError wraps the failure a procedure raised.
type ExecutionError struct {
	ID  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration procedure %q failed: %v", e.ID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// Invoker runs registered procedures.
type Invoker struct {
	Registry *Registry
}

// NewInvoker returns an invoker backed by reg.
func NewInvoker(reg *Registry) *Invoker {
	return &Invoker{Registry: reg}
}

// Resolve reports whether id can be run, without running it.
func (i *Invoker) Resolve(id string) error {
	if i == nil || i.Registry == nil {
		return &UnresolvedError{ID: id}
	}
	_, err := i.Registry.Lookup(id)
	return err
}

// Run resolves id and executes it once, synchronously, against h. The
// procedure's own errors and panics come back as *ExecutionError.
func (i *Invoker) Run(ctx context.Context, h dbx.Handle, id string) error {
	if i == nil || i.Registry == nil {
		return &UnresolvedError{ID: id}
	}
	p, err := i.Registry.Lookup(id)
	if err != nil {
		return err
	}

	logger := common.GetLogger().WithComponent("procedure").WithProcedure(id)
	logger.Info("executing migration procedure")
	start := time.Now()

	if err := execute(ctx, p, h); err != nil {
		logger.Error("migration procedure failed", "error", err, "elapsed", time.Since(start))
		return &ExecutionError{ID: id, Err: err}
	}
	logger.Info("migration procedure completed", "elapsed", time.Since(start))
	return nil
}

func execute(ctx context.Context, p Procedure, h dbx.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Execute(ctx, h)
}
