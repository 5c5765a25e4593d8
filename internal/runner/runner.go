// Package runner applies pending migration steps against a store and keeps
// the run history.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/step"
)

// Run statuses written to the history table.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Store is the bookkeeping the runner needs.
type Store interface {
	Handle() dbx.Handle
	CurrentVersion(ctx context.Context) (int, error)
	IsApplied(ctx context.Context, version int) (bool, error)
	Apply(ctx context.Context, version int, description string) error
	RecordRun(ctx context.Context, version int, description, status, phase, message string) error
}

// Result describes one planned or executed step.
type Result struct {
	Version     int
	Description string
	Status      string
	Phase       string
	Err         error
	DryRun      bool
	Elapsed     time.Duration
}

type Runner struct {
	Store  Store
	Steps  []step.Step
	DryRun bool
}

// Up applies steps greater than the current store version up to target, in
// ascending order. A target <= 0 applies everything pending. Each attempt is
// recorded in the run history; the version is recorded only on success and
// the first failure halts the run.
func (r *Runner) Up(ctx context.Context, target int) ([]*Result, error) {
	if r.Store == nil {
		return nil, errors.New("runner requires a store")
	}
	if err := step.Validate(r.Steps); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	cur, err := r.Store.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	plan := planUp(r.Steps, cur, target)

	logger := common.GetLogger().WithComponent("runner")
	logger.Info("planned migration steps", "current", cur, "target", target, "count", len(plan), "dry_run", r.DryRun)

	results := make([]*Result, 0, len(plan))
	h := r.Store.Handle()
	for _, s := range plan {
		res := &Result{Version: s.Version(), Description: s.Description(), DryRun: r.DryRun}
		results = append(results, res)
		if r.DryRun {
			logger.WithVersion(s.Version()).Info("dry-run: step would be applied", "description", s.Description())
			continue
		}
		if err := r.runStep(ctx, h, s, res); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Runner) runStep(ctx context.Context, h dbx.Handle, s step.Step, res *Result) error {
	logger := common.GetLogger().WithComponent("runner").WithVersion(s.Version())
	start := time.Now()
	execErr := s.Execute(ctx, h)
	res.Elapsed = time.Since(start)

	if execErr != nil {
		res.Status = StatusFailed
		res.Err = execErr
		var se *step.Error
		if errors.As(execErr, &se) {
			res.Phase = string(se.Phase)
		}
		// keep the history even when the caller's context is gone
		if err := r.Store.RecordRun(context.WithoutCancel(ctx), s.Version(), s.Description(), StatusFailed, res.Phase, execErr.Error()); err != nil {
			logger.Warn("failed to record step run", "error", err)
		}
		return fmt.Errorf("migration %d failed: %w", s.Version(), execErr)
	}

	res.Status = StatusSucceeded
	if err := r.Store.RecordRun(ctx, s.Version(), s.Description(), StatusSucceeded, "", ""); err != nil {
		return fmt.Errorf("record run %d: %w", s.Version(), err)
	}
	if err := r.Store.Apply(ctx, s.Version(), s.Description()); err != nil {
		return fmt.Errorf("record apply %d: %w", s.Version(), err)
	}
	logger.Info("migration step applied", "elapsed", res.Elapsed)
	return nil
}

// Pending lists the steps not yet recorded as applied, in ascending order.
func (r *Runner) Pending(ctx context.Context) ([]step.Step, error) {
	if r.Store == nil {
		return nil, errors.New("runner requires a store")
	}
	var pending []step.Step
	for _, s := range sorted(r.Steps) {
		ok, err := r.Store.IsApplied(ctx, s.Version())
		if err != nil {
			return nil, err
		}
		if !ok {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

func planUp(steps []step.Step, cur, target int) []step.Step {
	limit := target
	if limit <= 0 {
		limit = 1<<31 - 1
	}
	plan := make([]step.Step, 0)
	for _, s := range steps {
		if s.Version() > cur && s.Version() <= limit {
			plan = append(plan, s)
		}
	}
	return sorted(plan)
}

func sorted(steps []step.Step) []step.Step {
	out := append([]step.Step(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version() < out[j].Version() })
	return out
}
