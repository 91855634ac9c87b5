package chat

import "time"

// Rate limits observed per connection. Fixed wall-clock windows: the
// counter resets when a full window has elapsed since windowStart, so a
// burst straddling the boundary can admit close to twice the nominal
// rate. This matches the deployed policy and is relied on by clients.
const (
	sendLimit  = 10
	joinLimit  = 20
	rateWindow = 60 * time.Second
)

// rateWindowCounter is a fixed-window counter for one action class on
// one connection. It is only touched by that connection's receive loop,
// so it needs no locking.
type rateWindowCounter struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
}

func newRateWindow(limit int, window time.Duration) *rateWindowCounter {
	return &rateWindowCounter{limit: limit, window: window}
}

// tryAdmit rolls the window if it expired, then admits and counts the
// action if the limit allows. Denial has no side effect beyond the roll.
func (w *rateWindowCounter) tryAdmit(now time.Time) bool {
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.window {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// retryAfter reports how long until the current window rolls over.
func (w *rateWindowCounter) retryAfter(now time.Time) time.Duration {
	remaining := w.window - now.Sub(w.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
