package pairing

import (
	"sync"
	"time"
)

// Scheduler owns the single self-rescheduling activation timer of a
// Coordinator. It shares the coordinator's lock so that the timer handle,
// the cancelled flag and the session counters change together.
//
// Methods ending in Locked require the shared lock to be held.
type Scheduler struct {
	mu        sync.Locker
	interval  time.Duration
	tick      func() bool
	afterFunc func(time.Duration, func()) *time.Timer

	timer     *time.Timer
	gen       uint64
	cancelled bool
	inFlight  sync.WaitGroup
}

// NewScheduler creates a scheduler that calls tick every interval once armed.
// tick returns true to request another tick.
func NewScheduler(mu sync.Locker, interval time.Duration, tick func() bool) *Scheduler {
	return &Scheduler{
		mu:        mu,
		interval:  interval,
		tick:      tick,
		afterFunc: time.AfterFunc,
	}
}

// armLocked schedules the next tick unless the scheduler is cancelled or a
// tick is already pending.
func (s *Scheduler) armLocked() {
	if s.cancelled || s.timer != nil {
		return
	}
	gen := s.gen
	s.timer = s.afterFunc(s.interval, func() { s.fire(gen) })
}

// resetLocked re-enables a cancelled scheduler for a new cycle.
func (s *Scheduler) resetLocked() {
	s.cancelled = false
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	// A timer that fired while Abort was stopping it belongs to an old
	// generation and must not run.
	if s.cancelled || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inFlight.Add(1)
	s.mu.Unlock()
	defer s.inFlight.Done()

	again := s.tick()

	s.mu.Lock()
	if again && gen == s.gen {
		s.armLocked()
	}
	s.mu.Unlock()
}

// Abort cancels any pending tick and waits for an in-flight tick to return.
// After Abort returns no tick runs until the scheduler is reset.
// Abort must not be called from inside tick.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	s.cancelled = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.inFlight.Wait()
}

// scheduledLocked reports whether a tick is pending.
func (s *Scheduler) scheduledLocked() bool {
	return s.timer != nil
}
