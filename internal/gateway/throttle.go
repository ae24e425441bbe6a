package gateway

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEditInterval is the minimum gap between in-place edits pushed to
// the front-end during one streaming turn.
const DefaultEditInterval = 1500 * time.Millisecond

// EditThrottler coalesces partial-text updates for a single turn. The
// front-end's edit call is externally rate-limited, so intermediate
// partials inside the throttle window are dropped; the final flush always
// goes out. One instance per turn, discarded when the turn ends.
type EditThrottler struct {
	limiter *rate.Limiter
	update  func(text string) error

	mu      sync.Mutex
	flushed bool
}

// NewEditThrottler creates a throttler forwarding through update. A nil
// update disables partial delivery entirely (the turn still completes).
func NewEditThrottler(minInterval time.Duration, update func(string) error) *EditThrottler {
	if minInterval <= 0 {
		minInterval = DefaultEditInterval
	}
	return &EditThrottler{
		// Burst 1: the first partial goes out immediately, the rest are
		// spaced at the configured interval.
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		update:  update,
	}
}

// Partial forwards the accumulated text if the throttle window allows,
// otherwise drops it. Later partials supersede dropped ones because each
// call carries the full accumulated text.
func (t *EditThrottler) Partial(accumulated string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flushed || !t.limiter.Allow() {
		return
	}
	t.forward(accumulated)
}

// Flush forwards the final text exactly once, regardless of the throttle
// window. Partials arriving after Flush are ignored.
func (t *EditThrottler) Flush(final string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flushed {
		return
	}
	t.flushed = true
	t.forward(final)
}

// forward pushes text to the front-end. Delivery failures are logged and
// swallowed; they never fail the turn.
func (t *EditThrottler) forward(text string) {
	if t.update == nil || text == "" {
		return
	}
	if err := t.update(text); err != nil {
		slog.Warn("edit delivery failed", "error", err)
	}
}
