package procedure

import "context"

// Reporter receives progress from long-running procedures.
type Reporter interface {
	Start(total int)
	Add(n int)
	Finish()
}

// ctxKey is an unexported custom type to avoid context key collisions (SA1029).
type ctxKey string

const progressKey ctxKey = "stepmigrate.progress"

type nopReporter struct{}

func (nopReporter) Start(int) {}
func (nopReporter) Add(int)   {}
func (nopReporter) Finish()   {}

// WithProgress returns a context carrying r.
func WithProgress(ctx context.Context, r Reporter) context.Context {
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey, r)
}

// ProgressFrom returns the reporter installed on ctx, or one that discards
// everything.
func ProgressFrom(ctx context.Context) Reporter {
	if r, ok := ctx.Value(progressKey).(Reporter); ok {
		return r
	}
	return nopReporter{}
}
