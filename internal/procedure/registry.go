// Package procedure resolves bulk data-transformation procedures by their
// fully-qualified logical name and runs them against an explicit handle.
package procedure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loykin/stepmigrate/internal/dbx"
)

var (
	// ErrUnresolvedProcedure classifies lookups of ids nobody registered.
	ErrUnresolvedProcedure = errors.New("migration procedure not resolvable")
	// ErrExecutionFailed classifies failures raised inside a procedure.
	ErrExecutionFailed = errors.New("migration procedure failed")
)

// Procedure is a bulk transformation over the target database.
type Procedure interface {
	Execute(ctx context.Context, h dbx.Handle) error
}

// Func adapts an ordinary function to Procedure.
type Func func(ctx context.Context, h dbx.Handle) error

// Execute calls f(ctx, h).
func (f Func) Execute(ctx context.Context, h dbx.Handle) error { return f(ctx, h) }

// UnresolvedError names the id that could not be resolved.
type UnresolvedError struct {
	ID string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("migration procedure %q is not registered", e.ID)
}

func (e *UnresolvedError) Is(target error) bool { return target == ErrUnresolvedProcedure }

// Registry maps procedure ids to implementations. It is populated at process
// start and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Procedure
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: map[string]Procedure{}}
}

// Register adds p under id.
func (r *Registry) Register(id string, p Procedure) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("procedure id is required")
	}
	if p == nil {
		return fmt.Errorf("procedure %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.procs == nil {
		r.procs = map[string]Procedure{}
	}
	if _, exists := r.procs[id]; exists {
		return fmt.Errorf("procedure %q already registered", id)
	}
	r.procs[id] = p
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(id string, p Procedure) {
	if err := r.Register(id, p); err != nil {
		panic(err)
	}
}

// Lookup resolves id. Unknown ids yield an *UnresolvedError.
func (r *Registry) Lookup(id string) (Procedure, error) {
	r.mu.RLock()
	p, ok := r.procs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnresolvedError{ID: id}
	}
	return p, nil
}

// IDs lists registered ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
