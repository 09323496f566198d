package pairing

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/domain"
)

func TestSchedulerTicksUntilTickDeclines(t *testing.T) {
	var mu sync.Mutex
	var ticks atomic.Int32
	s := NewScheduler(&mu, time.Millisecond, func() bool {
		return ticks.Add(1) < 3
	})

	mu.Lock()
	s.armLocked()
	mu.Unlock()

	require.Eventually(t, func() bool { return ticks.Load() == 3 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(3), ticks.Load())

	mu.Lock()
	assert.False(t, s.scheduledLocked())
	mu.Unlock()
}

func TestSchedulerArmIsIdempotent(t *testing.T) {
	var mu sync.Mutex
	s := NewScheduler(&mu, time.Hour, func() bool { return false })

	mu.Lock()
	s.armLocked()
	first := s.timer
	s.armLocked()
	assert.Same(t, first, s.timer)
	mu.Unlock()

	s.Abort()
	mu.Lock()
	assert.False(t, s.scheduledLocked())
	mu.Unlock()
}

func TestSchedulerAbortBlocksUntilCancelledAndReset(t *testing.T) {
	var mu sync.Mutex
	var ticks atomic.Int32
	s := NewScheduler(&mu, time.Millisecond, func() bool {
		ticks.Add(1)
		return true
	})

	mu.Lock()
	s.armLocked()
	mu.Unlock()
	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)

	s.Abort()
	n := ticks.Load()

	mu.Lock()
	s.armLocked()
	assert.False(t, s.scheduledLocked(), "a cancelled scheduler must not arm")
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())

	mu.Lock()
	s.resetLocked()
	s.armLocked()
	mu.Unlock()
	require.Eventually(t, func() bool { return ticks.Load() > n }, time.Second, time.Millisecond)
	s.Abort()
}

func TestSchedulerDropsStaleGeneration(t *testing.T) {
	var mu sync.Mutex
	var ticks atomic.Int32
	s := NewScheduler(&mu, time.Hour, func() bool {
		ticks.Add(1)
		return false
	})

	var captured func()
	s.afterFunc = func(_ time.Duration, f func()) *time.Timer {
		captured = f
		return time.NewTimer(time.Hour)
	}

	mu.Lock()
	s.armLocked()
	mu.Unlock()
	require.NotNil(t, captured)

	s.Abort()
	mu.Lock()
	s.resetLocked()
	mu.Unlock()

	// The old timer fires late, after a new cycle was enabled.
	captured()
	assert.Equal(t, int32(0), ticks.Load())
}

func TestSessionAdvanceAndExpiry(t *testing.T) {
	s := newSession()
	assert.False(t, s.Active())

	s.issue(&domain.PairingCode{Code: "XYZ789", Token: "t"}, t0, time.Minute)
	assert.True(t, s.Active())
	assert.Equal(t, 0, s.PollCount)

	var reminders int
	for i := 0; i < 12; i++ {
		if s.advance(6) {
			reminders++
		}
	}
	assert.Equal(t, 2, reminders)
	assert.Equal(t, 0, s.PollCount)

	assert.False(t, s.expired(t0.Add(time.Minute)))
	assert.True(t, s.expired(t0.Add(time.Minute+time.Nanosecond)))

	s.clear()
	assert.False(t, s.Active())
	assert.Empty(t, s.Code)
	assert.Empty(t, s.Token)
}
