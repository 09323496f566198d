// Package pairing implements the device-code pairing cycle: code issuance
// with bounded retries, periodic activation polling, expiry and credential
// persistence.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"devicepair/internal/domain"
	"devicepair/internal/infra/metrics"
	"devicepair/internal/infra/tracer"
)

// EndReason explains why a cycle ended without restarting.
type EndReason string

const (
	EndConnectionError EndReason = "connection_error"
	EndCancelled       EndReason = "cancelled"
)

// Callbacks receive pairing outcomes. Any field may be nil.
//
// Callbacks run on coordinator goroutines, including the poll timer. They
// must not call AbortAndRestart, End or Shutdown synchronously.
type Callbacks struct {
	Start    func()
	Code     func(code string)
	Reminder func(code string)
	Success  func(creds *domain.DeviceCredentials)
	Error    func(quiet bool)
	// Restart is invoked when the issued code expired. When nil the
	// coordinator starts a new cycle on its own.
	Restart func()
	End     func(reason EndReason)
}

// Config holds the cycle timings.
type Config struct {
	PollInterval     time.Duration
	CodeTTL          time.Duration
	ReminderEvery    int
	IssueBackoff     time.Duration
	IssueMaxFailures int
}

// DefaultConfig returns the standard device-code timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:     5 * time.Second,
		CodeTTL:          72000 * time.Second,
		ReminderEvery:    6,
		IssueBackoff:     10 * time.Second,
		IssueMaxFailures: 30,
	}
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock used for issuance and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSleep replaces the backoff sleep between issuance attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// WithUUIDSource replaces the per-cycle state UUID generator.
func WithUUIDSource(fn func() string) Option {
	return func(c *Coordinator) { c.newUUID = fn }
}

// Coordinator runs at most one pairing cycle at a time.
type Coordinator struct {
	mu      sync.Mutex
	session *Session
	sched   *Scheduler
	cb      Callbacks
	cycleID string
	issuing bool
	closed  bool

	stopIssue context.CancelFunc
	issueDone chan struct{}
	starts    sync.WaitGroup

	backend domain.BackendClient
	store   domain.CredentialStore
	bus     domain.EventBus
	cfg     Config
	logger  *slog.Logger

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	newUUID func() string
	entropy *ulid.MonotonicEntropy

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Coordinator. bus may be nil.
func New(backend domain.BackendClient, store domain.CredentialStore, bus domain.EventBus, cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg.ReminderEvery <= 0 {
		cfg.ReminderEvery = DefaultConfig().ReminderEvery
	}
	if cfg.IssueMaxFailures <= 0 {
		cfg.IssueMaxFailures = DefaultConfig().IssueMaxFailures
	}
	t := time.Now()
	c := &Coordinator{
		session: newSession(),
		backend: backend,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
		newUUID: uuid.NewString,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.sched = NewScheduler(&c.mu, cfg.PollInterval, c.checkActivation)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCallbacks installs the outcome callbacks.
func (c *Coordinator) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// SetAPIURL retargets the backend client. It takes effect for the next
// backend call.
func (c *Coordinator) SetAPIURL(url string) {
	c.backend.SetBaseURL(url)
}

// Active reports whether a cycle is issuing a code or polling.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issuing || c.session.Active()
}

// Snapshot returns a copy of the current session.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

// Start begins a pairing cycle. It blocks while the code is being issued,
// including backoff between failed attempts, and returns once polling is
// armed. Start is a no-op while another cycle is active.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrPairingClosed
	}
	if c.issuing || c.session.Active() {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.issuing = true
	c.stopIssue = cancel
	c.issueDone = done
	c.starts.Add(1)
	c.session.FailedIssueAttempts = 0
	c.session.UUID = c.newUUID()
	c.cycleID = ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String()
	stateUUID, cycle := c.session.UUID, c.cycleID
	c.mu.Unlock()

	defer c.starts.Done()
	defer close(done)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.logger.Info("pairing cycle starting", "cycle", cycle)
	pc, err := c.issue(ctx, stateUUID, cycle)
	if err != nil {
		return err
	}

	// A halt that fired during issuance owns the cycle now. The code that
	// arrived late is dropped without callbacks.
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.releaseIssueLocked()
		c.mu.Unlock()
		c.logger.Info("pairing cycle cancelled during issuance", "cycle", cycle)
		return c.cancelledErr(ctx)
	}
	c.session.issue(pc, c.now(), c.cfg.CodeTTL)
	c.sched.resetLocked()
	cb := c.cb
	c.mu.Unlock()

	metrics.CodesIssuedTotal.Inc()
	c.logger.Info("pairing code issued", "cycle", cycle)

	c.publish(domain.EventPairingStarted, cycle, nil)
	if cb.Start != nil {
		cb.Start()
	}
	c.publish(domain.EventPairingCodeIssue, cycle, domain.PairingCodePayload{Code: pc.Code})
	if cb.Code != nil {
		cb.Code(pc.Code)
	}

	// halt waits on done until here, so polling is either armed before it
	// runs Abort or not armed at all.
	c.mu.Lock()
	c.releaseIssueLocked()
	if ctx.Err() == nil && c.session.Active() && c.cycleID == cycle {
		c.sched.armLocked()
	}
	c.mu.Unlock()
	return nil
}

// issue requests a code until it succeeds or the failure budget is spent.
func (c *Coordinator) issue(ctx context.Context, stateUUID, cycle string) (*domain.PairingCode, error) {
	for attempt := 1; ; attempt++ {
		pc, err := c.issueOnce(ctx, stateUUID, attempt)
		if err == nil {
			return pc, nil
		}
		if ctx.Err() != nil {
			c.stopIssuing()
			return nil, c.cancelledErr(ctx)
		}

		c.mu.Lock()
		c.session.FailedIssueAttempts++
		failures := c.session.FailedIssueAttempts
		exhausted := failures >= c.cfg.IssueMaxFailures
		if exhausted {
			c.session.FailedIssueAttempts = 0
			c.session.clear()
			c.releaseIssueLocked()
		}
		c.mu.Unlock()

		metrics.IssueFailuresTotal.Inc()
		c.logger.Warn("pairing code issuance failed", "cycle", cycle, "attempt", failures, "error", err)

		if exhausted {
			c.finish(cycle, EndConnectionError)
			return nil, domain.NewSubSystemError("pairing", "Coordinator.Start", domain.ErrPermanentConnection,
				fmt.Sprintf("%d consecutive issuance failures", failures))
		}
		if err := c.sleep(ctx, c.cfg.IssueBackoff); err != nil {
			c.stopIssuing()
			return nil, c.cancelledErr(ctx)
		}
	}
}

func (c *Coordinator) issueOnce(ctx context.Context, stateUUID string, attempt int) (*domain.PairingCode, error) {
	ctx, span := tracer.StartSpan(ctx, "pairing.issue_code", tracer.WithAttrs(
		tracer.StringAttr("state", stateUUID),
		tracer.IntAttr("attempt", attempt),
	))
	pc, err := c.backend.IssueCode(ctx, stateUUID)
	if err == nil && (pc == nil || pc.Code == "" || pc.Token == "") {
		err = fmt.Errorf("backend returned an empty pairing code")
	}
	err = domain.ClassifyIssueError(err)
	tracer.End(span, err)
	return pc, err
}

func (c *Coordinator) stopIssuing() {
	c.mu.Lock()
	c.releaseIssueLocked()
	c.mu.Unlock()
}

func (c *Coordinator) releaseIssueLocked() {
	c.issuing = false
	c.stopIssue = nil
	c.issueDone = nil
}

func (c *Coordinator) cancelledErr(ctx context.Context) error {
	if c.ctx.Err() != nil || ctx.Err() == nil {
		return domain.ErrPairingClosed
	}
	return domain.WrapOp("Coordinator.Start", ctx.Err())
}

// checkActivation is the poll tick. It returns true to keep polling.
func (c *Coordinator) checkActivation() bool {
	c.mu.Lock()
	if c.closed || !c.session.Active() {
		c.mu.Unlock()
		return false
	}
	stateUUID, token, cycle := c.session.UUID, c.session.Token, c.cycleID
	c.mu.Unlock()

	ctx, span := tracer.StartSpan(c.ctx, "pairing.activate", tracer.WithAttrs(tracer.StringAttr("cycle", cycle)))
	creds, err := c.backend.Activate(ctx, stateUUID, token)
	if err == nil && !creds.Valid() {
		err = fmt.Errorf("backend returned incomplete credentials")
	}
	err = domain.ClassifyActivationError(err)
	if errors.Is(err, domain.ErrActivationPending) {
		tracer.End(span, nil)
	} else {
		tracer.End(span, err)
	}

	switch {
	case err == nil:
		c.onActivated(cycle, creds)
		return false
	case errors.Is(err, domain.ErrActivationPending):
		return c.onPending(cycle)
	case c.ctx.Err() != nil:
		return false
	default:
		metrics.RecordPollTick("error")
		c.logger.Warn("activation failed, restarting pairing", "cycle", cycle, "error", err)
		c.abortCycle(cycle, false)
		return false
	}
}

func (c *Coordinator) onPending(cycle string) bool {
	now := c.now()

	c.mu.Lock()
	if !c.session.Active() || c.cycleID != cycle {
		c.mu.Unlock()
		return false
	}
	if c.session.expired(now) {
		c.session.clear()
		cb := c.cb
		c.mu.Unlock()

		metrics.RecordPollTick("expired")
		metrics.RecordOutcome("restart")
		c.logger.Info("pairing code expired, restarting", "cycle", cycle)
		if cb.Restart != nil {
			cb.Restart()
		} else {
			c.startAsync()
		}
		return false
	}
	remind := c.session.advance(c.cfg.ReminderEvery)
	code := c.session.Code
	cb := c.cb
	c.mu.Unlock()

	metrics.RecordPollTick("pending")
	if remind && cb.Reminder != nil {
		cb.Reminder(code)
	}
	return true
}

func (c *Coordinator) onActivated(cycle string, creds *domain.DeviceCredentials) {
	if err := c.persist(creds); err != nil {
		metrics.RecordPollTick("error")
		c.logger.Error("could not persist credentials, restarting pairing", "cycle", cycle, "error", err)
		c.abortCycle(cycle, false)
		return
	}

	c.mu.Lock()
	if c.cycleID == cycle {
		c.session.clear()
	}
	cb := c.cb
	c.mu.Unlock()

	metrics.RecordPollTick("paired")
	metrics.RecordOutcome("success")
	c.logger.Info("device paired", "cycle", cycle, "uuid", creds.UUID)

	c.publish(domain.EventDevicePaired, cycle, domain.CredentialsPayload{Credentials: creds})
	c.publish(domain.EventPairingSucceeded, cycle, domain.CredentialsPayload{Credentials: creds})
	if cb.Success != nil {
		cb.Success(creds)
	}
}

// persist saves creds, retrying once immediately.
func (c *Coordinator) persist(creds *domain.DeviceCredentials) error {
	err := c.store.Save(c.ctx, creds)
	if err == nil {
		return nil
	}
	c.logger.Warn("credential save failed, retrying", "error", err)
	if err := c.store.Save(c.ctx, creds); err != nil {
		return domain.NewSubSystemError("pairing", "Coordinator.persist", domain.ErrCredentialPersist, err.Error())
	}
	return nil
}

// abortCycle clears the session from inside the poll tick and reports the
// failure. It never waits on the scheduler.
func (c *Coordinator) abortCycle(cycle string, quiet bool) {
	c.mu.Lock()
	if c.cycleID == cycle {
		c.session.clear()
	}
	c.mu.Unlock()
	c.fail(cycle, quiet)
}

func (c *Coordinator) fail(cycle string, quiet bool) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()

	metrics.RecordOutcome("aborted")
	if cb.Error != nil {
		cb.Error(quiet)
	}
	c.publish(domain.EventPairingFailed, cycle, domain.QuietPayload{Quiet: quiet})
	c.publish(domain.EventDeviceNotPaired, cycle, domain.QuietPayload{Quiet: quiet})
}

func (c *Coordinator) finish(cycle string, reason EndReason) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()

	metrics.RecordOutcome("ended")
	c.logger.Info("pairing cycle ended", "cycle", cycle, "reason", string(reason))
	c.publish(domain.EventPairingEnded, cycle, domain.PairingEndedPayload{Reason: string(reason)})
	if cb.End != nil {
		cb.End(reason)
	}
}

// AbortAndRestart stops the current cycle and emits a not-paired signal so
// the surrounding flow can start over. When quiet is set observers should
// not announce the failure.
func (c *Coordinator) AbortAndRestart(quiet bool) {
	cycle := c.halt()
	c.fail(cycle, quiet)
}

// End stops the current cycle for good. No restart is signalled.
func (c *Coordinator) End(reason EndReason) {
	cycle := c.halt()
	c.finish(cycle, reason)
}

// halt cancels issuance, aborts the scheduler and clears the session.
func (c *Coordinator) halt() string {
	c.mu.Lock()
	stopIssue, issueDone := c.stopIssue, c.issueDone
	c.mu.Unlock()
	if stopIssue != nil {
		stopIssue()
		<-issueDone
	}

	c.sched.Abort()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.clear()
	return c.cycleID
}

// Shutdown aborts polling and any issuance in progress and waits for them.
// After Shutdown returns no callback fires and Start returns ErrPairingClosed.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.sched.Abort()
	c.starts.Wait()

	c.mu.Lock()
	c.session.clear()
	c.mu.Unlock()
}

func (c *Coordinator) startAsync() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.starts.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.starts.Done()
		if err := c.Start(c.ctx); err != nil && !errors.Is(err, domain.ErrPairingClosed) {
			c.logger.Warn("pairing restart failed", "error", err)
		}
	}()
}

func (c *Coordinator) publish(t domain.EventType, cycle string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(context.Background(), domain.NewEvent(t, cycle, payload))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
