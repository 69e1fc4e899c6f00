package infra

import (
	"context"
	"time"
)

// RetryPolicy is an explicit, unit-testable reconnection policy: a small
// fixed number of attempts with a flat delay between them. The delay is
// deliberately not exponential; the retry budget is too small for backoff
// growth to matter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy matches the stream supervisor's budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Exhausted reports whether the attempt counter has used up the budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Wait blocks for the fixed delay or until ctx is canceled.
func (p RetryPolicy) Wait(ctx context.Context) error {
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
