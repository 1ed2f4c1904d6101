package throttle

import (
	"context"
	"sync"
	"time"
)

// RequestThrottle bounds the aggregate outbound request weight issued per
// one-second window across all goroutines sharing the same instance. A
// limit of 0 disables throttling entirely.
//
// The mutex is held only long enough to decide "issue now" or compute how
// long to wait; the wait itself is a context-aware timer outside the lock,
// so a waiting goroutine suspends instead of occupying a thread, and the
// lock is never held across the wait or the subsequent network call.
type RequestThrottle struct {
	limit int

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// New creates a throttle allowing at most limit weighted units per second.
// limit 0 means unlimited.
func New(limit int) *RequestThrottle {
	return &RequestThrottle{limit: limit}
}

// Reserve blocks until weight units fit into the current one-second window,
// then consumes them. An empty window always admits one reservation, so a
// weight larger than the limit consumes the whole window instead of
// starving forever. Returns early with ctx.Err() on cancellation.
//
// The bound holds per fixed window measured from the window's first grant,
// not over an arbitrary sliding one-second interval: an interval straddling
// a window reset can briefly observe up to twice the limit.
func (t *RequestThrottle) Reserve(ctx context.Context, weight int) error {
	if t == nil || t.limit == 0 || weight <= 0 {
		return nil
	}

	for {
		t.mu.Lock()
		now := time.Now()
		if t.windowStart.IsZero() || now.Sub(t.windowStart) >= time.Second {
			t.windowStart = now
			t.used = 0
		}
		if t.used+weight <= t.limit || t.used == 0 {
			t.used += weight
			t.mu.Unlock()
			return nil
		}
		wait := time.Second - now.Sub(t.windowStart)
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limit returns the configured per-second weight limit.
func (t *RequestThrottle) Limit() int {
	if t == nil {
		return 0
	}
	return t.limit
}
