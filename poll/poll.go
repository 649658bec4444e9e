// Package poll waits for conditions that have no completion signal.
//
// Rendering pipelines (canvas layout on a goroutine, a headless browser
// painting a chart) often expose only "is it done yet?". Until turns that
// into a bounded wait: a fixed number of checks at a fixed interval, so the
// caller always makes forward progress.
package poll

import (
	"context"
	"time"
)

// Budget bounds a wait by attempt count rather than wall-clock time.
type Budget struct {
	Attempts int
	Interval time.Duration
}

// DefaultBudget is 30 checks, 100ms apart.
var DefaultBudget = Budget{Attempts: 30, Interval: 100 * time.Millisecond}

// Until evaluates cond up to b.Attempts times, sleeping b.Interval between
// checks. It reports whether cond became true. Exhausting the budget is not
// an error; only ctx cancellation is.
func Until(ctx context.Context, b Budget, cond func() bool) (bool, error) {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for i := 0; ; i++ {
		if cond() {
			return true, nil
		}
		if i >= attempts-1 {
			return false, nil
		}
		if timer == nil {
			timer = time.NewTimer(b.Interval)
		} else {
			timer.Reset(b.Interval)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}
