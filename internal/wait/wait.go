// Package wait implements fixed-interval polling with a bounded attempt
// count, used to wait for external resource state convergence.
package wait

import (
	"context"
	"fmt"
	"time"
)

// ErrTimeout is returned when the condition does not hold within the
// configured attempt budget.
type ErrTimeout struct {
	Attempts int
	Interval time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("condition not met after %d attempts (%s apart)", e.Attempts, e.Interval)
}

// Until polls cond at the given interval until it returns done=true, it
// returns an error, the attempt budget is exhausted, or ctx is cancelled.
// cond is evaluated once immediately before the first sleep.
func Until(ctx context.Context, interval time.Duration, maxAttempts int, cond func(ctx context.Context) (done bool, err error)) error {
	for attempt := 1; ; attempt++ {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= maxAttempts {
			return &ErrTimeout{Attempts: maxAttempts, Interval: interval}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
