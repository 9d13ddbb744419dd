package insert

import (
	"context"
	"sync"
)

// Throttle bounds the number of outstanding write requests with low/high
// watermark hysteresis: submission runs freely below the high watermark,
// and once it is reached, blocks until completions bring the count down to
// half of it.
type Throttle struct {
	mu       sync.Mutex
	inFlight int
	high     int
	low      int
	drained  chan struct{}
}

// NewThrottle uses max as the high watermark and max/2 as the low one.
func NewThrottle(max int) *Throttle {
	if max < 1 {
		max = 1
	}
	return &Throttle{high: max, low: max / 2}
}

// Acquire reserves a slot for one request. waited reports whether the call
// had to pause at the high watermark.
func (t *Throttle) Acquire(ctx context.Context) (waited bool, err error) {
	t.mu.Lock()
	if t.inFlight >= t.high {
		waited = true
		for t.inFlight > t.low {
			if t.drained == nil {
				t.drained = make(chan struct{})
			}
			ch := t.drained
			t.mu.Unlock()

			select {
			case <-ch:
			case <-ctx.Done():
				return waited, ctx.Err()
			}
			t.mu.Lock()
		}
	}
	t.inFlight++
	t.mu.Unlock()
	return waited, nil
}

// Release frees the slot of a completed request.
func (t *Throttle) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	if t.inFlight <= t.low && t.drained != nil {
		close(t.drained)
		t.drained = nil
	}
}

// InFlight returns the current number of outstanding requests.
func (t *Throttle) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Watermarks returns the low and high watermarks.
func (t *Throttle) Watermarks() (low, high int) {
	return t.low, t.high
}
