package poller

import (
	"context"
	"math/rand/v2"
	"time"
)

// jitterRange is the upper bound of the random delay added to every wait.
// Without it all pollers tick in lockstep and hit the pool at once, which
// shows up as bursts of fresh session allocations.
const jitterRange = 50 * time.Millisecond

// waiter paces a polling loop: it sleeps for the target period minus the
// time the previous iteration already consumed, plus jitter.
type waiter struct {
	last time.Time
}

func newWaiter() *waiter {
	return &waiter{last: time.Now()}
}

// wait sleeps until the next tick or until ctx is done.
func (w *waiter) wait(ctx context.Context, period time.Duration) error {
	delay := period - time.Since(w.last)
	if delay < 0 {
		delay = 0
	}
	delay += rand.N(jitterRange)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	w.last = time.Now()
	return nil
}
