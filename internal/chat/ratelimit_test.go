package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindowAdmitsUpToLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newRateWindow(10, time.Minute)

	for i := 0; i < 10; i++ {
		assert.True(t, w.tryAdmit(now), "action %d should be admitted", i+1)
	}
	assert.False(t, w.tryAdmit(now), "11th action in the window must be denied")
}

func TestRateWindowDenialHasNoSideEffects(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newRateWindow(2, time.Minute)

	assert.True(t, w.tryAdmit(now))
	assert.True(t, w.tryAdmit(now))
	for i := 0; i < 5; i++ {
		assert.False(t, w.tryAdmit(now))
	}
	assert.Equal(t, 2, w.count)
}

func TestRateWindowRollsOver(t *testing.T) {
	start := time.Unix(1000, 0)
	w := newRateWindow(10, time.Minute)

	for i := 0; i < 10; i++ {
		w.tryAdmit(start)
	}
	assert.False(t, w.tryAdmit(start.Add(59*time.Second)), "still inside the window")

	// A full window elapsed since windowStart resets the counter.
	assert.True(t, w.tryAdmit(start.Add(time.Minute)))
	assert.Equal(t, 1, w.count)
}

// The fixed window deliberately allows a burst straddling the boundary
// to reach nearly double the nominal rate.
func TestRateWindowBoundaryBurst(t *testing.T) {
	start := time.Unix(1000, 0)
	w := newRateWindow(10, time.Minute)

	late := start.Add(59 * time.Second)
	for i := 0; i < 10; i++ {
		assert.True(t, w.tryAdmit(late))
	}
	after := start.Add(119 * time.Second)
	for i := 0; i < 10; i++ {
		assert.True(t, w.tryAdmit(after))
	}
}

func TestRetryAfter(t *testing.T) {
	start := time.Unix(1000, 0)
	w := newRateWindow(1, time.Minute)

	w.tryAdmit(start)
	assert.Equal(t, 40*time.Second, w.retryAfter(start.Add(20*time.Second)))
	assert.Equal(t, time.Duration(0), w.retryAfter(start.Add(2*time.Minute)))
}
