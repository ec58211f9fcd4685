// Package clock abstracts the time operations used for settle delays, pacing
// jitter and refresh ticks so tests can run the daemon and link schedules
// without waiting.
package clock

import (
	"context"
	"time"
)

// Clock is the time source injected into the orchestrator and the link
// runtime. Production code uses Real; tests use Fake.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If d <= 0
	// the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker delivers ticks on C every d. Ticks are dropped, not queued,
	// when the consumer falls behind.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Call Stop to release it.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Sleep waits for d on c or until ctx is done, whichever comes first. It
// returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
