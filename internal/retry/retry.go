// Package retry re-dials a store while the driver classifies the failure as
// transient. Step bodies are never retried; a failed step is reported as is.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/stepmigrate/internal/common"
)

// Transient reports whether a connect error is expected to clear on its own,
// such as a server still starting up or a full connection pool.
type Transient func(error) bool

// Backoff bounds how often and how quickly Connect dials again.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
}

// DefaultBackoff is used when opening stores.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 4,
		Initial:  100 * time.Millisecond,
		Max:      5 * time.Second,
		Factor:   2,
	}
}

// Wait returns the pause after failed attempt n, counting from 1.
func (b Backoff) Wait(n int) time.Duration {
	d := b.Initial
	for i := 1; i < n && d < b.Max; i++ {
		d = time.Duration(float64(d) * b.Factor)
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Connect calls dial until it succeeds. It stops at the first error transient
// rejects, when ctx is done, or after b.Attempts calls. A nil transient never
// retries.
func Connect(ctx context.Context, b Backoff, transient Transient, dial func() error) error {
	logger := common.GetLogger().WithComponent("store-retry")
	attempts := max(b.Attempts, 1)

	var err error
	for n := 1; n <= attempts; n++ {
		if err = dial(); err == nil {
			if n > 1 {
				logger.Info("connected after retry", "attempt", n)
			}
			return nil
		}
		if transient == nil || !transient(err) {
			return err
		}
		if n == attempts {
			break
		}

		wait := b.Wait(n)
		logger.Warn("transient connect failure, retrying",
			"error", err,
			"attempt", n,
			"max_attempts", attempts,
			"retry_delay", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	logger.Error("giving up on connect", "error", err, "attempts", attempts)
	return fmt.Errorf("connect failed after %d attempts: %w", attempts, err)
}
