// Package step defines versioned migration units built from ordered actions.
package step

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
)

// Step is one versioned unit of schema or data migration.
type Step interface {
	Version() int
	Description() string
	Execute(ctx context.Context, h dbx.Handle) error
}

// Phase names the part of a step an action belongs to.
type Phase string

const (
	PhaseExternalTransform Phase = "external-transform"
	PhaseCatalogRename     Phase = "catalog-rename"
	// PhaseTransaction is reported when the surrounding transaction itself fails.
	PhaseTransaction Phase = "transaction"
)

// Action is one phase of a step.
type Action struct {
	Phase   Phase
	Summary string
	// Check, when set, runs before any action of the step touches the database.
	Check func() error
	Run   func(ctx context.Context, h dbx.Handle) error
}

// Versioned is the standard Step implementation. Its definition is fixed at
// construction; only the execution state changes.
type Versioned struct {
	version     int
	description string
	policy      TxPolicy
	actions     []Action

	mu    sync.Mutex
	state State

	// observe, when set, sees every state transition.
	observe func(State)
}

var _ Step = (*Versioned)(nil)

// New builds a step running actions in order under policy.
func New(version int, description string, policy TxPolicy, actions ...Action) *Versioned {
	return &Versioned{
		version:     version,
		description: description,
		policy:      policy,
		actions:     append([]Action(nil), actions...),
	}
}

func (s *Versioned) Version() int        { return s.version }
func (s *Versioned) Description() string { return s.description }
func (s *Versioned) Policy() TxPolicy    { return s.policy }

// Actions returns a copy of the step's actions.
func (s *Versioned) Actions() []Action {
	return append([]Action(nil), s.actions...)
}

// State returns the state of the latest execution.
func (s *Versioned) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Versioned) setState(st State) {
	s.mu.Lock()
	s.state = st
	observe := s.observe
	s.mu.Unlock()
	if observe != nil {
		observe(st)
	}
}

// Execute runs every action in order and stops at the first failure, which is
// returned as *Error.
func (s *Versioned) Execute(ctx context.Context, h dbx.Handle) error {
	logger := common.GetLogger().WithComponent("step").WithVersion(s.version)
	s.setState(Running)

	for _, a := range s.actions {
		if a.Check == nil {
			continue
		}
		if err := a.Check(); err != nil {
			s.setState(Failed)
			logger.Error("step precondition failed", "phase", string(a.Phase), "error", err)
			return s.fail(a.Phase, nil, err)
		}
	}

	logger.Info("executing step", "description", s.description, "policy", s.policy.String())

	var err error
	switch s.policy {
	case Atomic:
		err = s.runAtomic(ctx, h)
	default:
		err = s.runActions(ctx, h)
	}
	if err != nil {
		s.setState(Failed)
		logger.Error("step failed", "error", err)
		return err
	}
	s.setState(Succeeded)
	logger.Info("step completed")
	return nil
}

func (s *Versioned) runAtomic(ctx context.Context, h dbx.Handle) error {
	var stepErr *Error
	err := dbx.InTx(ctx, h, func(tx dbx.Handle) error {
		if err := s.runActions(ctx, tx); err != nil {
			stepErr, _ = err.(*Error)
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if stepErr != nil {
		// rolled back with the transaction
		stepErr.Committed = nil
		return stepErr
	}
	return s.fail(PhaseTransaction, nil, err)
}

// runActions reports finished phases as committed only when it owns the
// connection; inside a caller's transaction nothing is committed yet.
func (s *Versioned) runActions(ctx context.Context, h dbx.Handle) error {
	owned := !h.InTransaction()
	var done []Phase
	for _, a := range s.actions {
		logger := common.GetLogger().WithComponent("step").WithVersion(s.version).WithPhase(string(a.Phase))
		if err := ctx.Err(); err != nil {
			return s.fail(a.Phase, done, err)
		}
		logger.Debug("running action", "summary", a.Summary)
		if a.Run != nil {
			if err := a.Run(ctx, h); err != nil {
				return s.fail(a.Phase, done, err)
			}
		}
		if owned {
			done = append(done, a.Phase)
		}
	}
	return nil
}

func (s *Versioned) fail(phase Phase, committed []Phase, err error) *Error {
	return &Error{
		Version:     s.version,
		Description: s.description,
		Phase:       phase,
		Committed:   append([]Phase(nil), committed...),
		Err:         err,
	}
}

// Error reports which phase of a step failed and which earlier phases stay
// committed.
type Error struct {
	Version     int
	Description string
	Phase       Phase
	Committed   []Phase
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d (%s) failed in phase %s", e.Version, e.Description, e.Phase)
	if len(e.Committed) > 0 {
		parts := make([]string, len(e.Committed))
		for i, p := range e.Committed {
			parts[i] = string(p)
		}
		fmt.Fprintf(&b, " after committing %s", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }
