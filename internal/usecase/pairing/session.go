package pairing

import (
	"time"

	"devicepair/internal/domain"
)

// idle is the PollCount of a session with no active cycle.
const idle = -1

// Session is the mutable state of one pairing cycle. All fields are guarded
// by the owning Coordinator's mutex.
type Session struct {
	UUID                string
	Code                string
	Token               string
	IssuedAt            time.Time
	ExpiresAt           time.Time
	PollCount           int
	FailedIssueAttempts int
}

func newSession() *Session {
	return &Session{PollCount: idle}
}

// Active reports whether a polling cycle is in progress.
func (s *Session) Active() bool { return s.PollCount > idle }

// issue records a freshly issued code and arms the session for polling.
func (s *Session) issue(pc *domain.PairingCode, now time.Time, ttl time.Duration) {
	s.Code = pc.Code
	s.Token = pc.Token
	s.IssuedAt = now
	s.ExpiresAt = now.Add(ttl)
	s.PollCount = 0
	s.FailedIssueAttempts = 0
}

// clear returns the session to idle. Code and token are always dropped
// together.
func (s *Session) clear() {
	s.PollCount = idle
	s.Code = ""
	s.Token = ""
}

// advance moves the reminder counter and reports whether this tick is a
// reminder tick.
func (s *Session) advance(every int) bool {
	remind := s.PollCount == 0
	s.PollCount = (s.PollCount + 1) % every
	return remind
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Snapshot is a copy of the session safe to read without the lock.
type Snapshot struct {
	UUID      string
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	PollCount int
	Failures  int
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		UUID:      s.UUID,
		Code:      s.Code,
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.ExpiresAt,
		PollCount: s.PollCount,
		Failures:  s.FailedIssueAttempts,
	}
}
