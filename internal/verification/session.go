package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eatflow-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTickInterval = time.Second
	defaultCallTimeout  = 15 * time.Second
)

// issueSeq orders successful issuances across sessions
var issueSeq atomic.Uint64

// Session owns one time-boxed verification challenge.
//
// Every transition happens under mu. Issuer and verifier calls run outside
// the lock while the status (requesting / verifying) keeps them single-flight;
// each call carries an epoch so results that arrive after Reset, Close or a
// newer call are dropped.
type Session struct {
	id           string
	flow         Flow
	issuer       Issuer
	verifier     Verifier
	limiter      IssueLimiter
	clock        Clock
	tickInterval time.Duration
	callTimeout  time.Duration
	observers    []Observer
	logger       *zap.Logger

	mu           sync.Mutex
	status       Status
	target       string
	issuedAt     time.Time
	prevStatus   Status
	prevIssuedAt time.Time
	lastError    Kind
	attemptCode  string
	resends      int
	issueSeq     uint64
	version      uint64
	epoch        uint64
	closed       bool
	lastUsed     time.Time
	callCancel   context.CancelFunc
	driverGen    uint64
	stopDriver   context.CancelFunc
}

// Option customizes a Session
type Option func(*Session)

// WithID overrides the generated session id
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTickInterval sets the countdown driver cadence; zero disables the
// driver and leaves expiry to explicit Tick calls.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

// WithCallTimeout bounds each issuer/verifier call
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithIssueLimiter(l IssueLimiter) Option {
	return func(s *Session) { s.limiter = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates an idle challenge for flow
func NewSession(flow Flow, issuer Issuer, verifier Verifier, opts ...Option) (*Session, error) {
	if issuer == nil || verifier == nil {
		return nil, errors.New("issuer and verifier are required")
	}
	if flow.TTL <= 0 {
		return nil, fmt.Errorf("flow %q: ttl must be positive", flow.Name)
	}
	s := &Session{
		id:           uuid.NewString(),
		flow:         flow,
		issuer:       issuer,
		verifier:     verifier,
		clock:        SystemClock,
		tickInterval: defaultTickInterval,
		callTimeout:  defaultCallTimeout,
		logger:       zap.NewNop(),
		status:       StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastUsed = s.clock.Now()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Flow() Flow { return s.flow }

// RequestCode issues a code for target, or reissues one for the current target
func (s *Session) RequestCode(ctx context.Context, target string) error {
	target = util.NormalizeEmail(target)
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastUsed = now
	from := s.status

	if !util.IsValidEmail(target) {
		var t *Transition
		if from == StatusIdle || from == StatusActive || from == StatusExpired {
			s.lastError = KindInvalidTargetFormat
			t = s.changedLocked(from, now)
		}
		s.mu.Unlock()
		s.notify(t)
		return ErrInvalidTargetFormat
	}

	resend := false
	switch from {
	case StatusIdle:
	case StatusActive, StatusExpired:
		if target != s.target {
			s.lastError = KindTargetChanged
			t := s.changedLocked(from, now)
			s.mu.Unlock()
			s.notify(t)
			return ErrTargetChanged
		}
		resend = true
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot request a code while %s", ErrInvalidState, from)
	}

	if resend && s.flow.MaxResends > 0 && s.resends >= s.flow.MaxResends {
		s.status = StatusFailed
		s.lastError = KindResendLimit
		t := s.changedLocked(from, now)
		s.mu.Unlock()
		s.notify(t)
		return ErrResendLimit
	}

	s.prevStatus = from
	s.prevIssuedAt = s.issuedAt
	s.issuedAt = time.Time{}
	s.attemptCode = ""
	s.lastError = KindNone
	s.status = StatusRequesting
	epoch, callCtx := s.beginCallLocked(ctx)
	t := s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)

	err := s.issue(callCtx, target)

	now = s.clock.Now()
	s.mu.Lock()
	if stale := s.endCallLocked(epoch); stale != nil {
		s.mu.Unlock()
		s.logger.Debug("Discarded issuance result",
			zap.String("session_id", s.id),
			zap.NamedError("result", err))
		return stale
	}

	from = s.status
	var result error
	switch {
	case err == nil:
		s.target = target
		s.issuedAt = now
		s.issueSeq = issueSeq.Add(1)
		s.prevIssuedAt = time.Time{}
		if resend {
			s.resends++
		}
		s.status = StatusActive
	case errors.Is(err, ErrRejectedTarget):
		s.clearLocked()
		s.lastError = KindRejectedTarget
		result = err
	default:
		// issue_limited and network_error both leave the prior challenge in place
		s.status = s.prevStatus
		s.issuedAt = s.prevIssuedAt
		s.prevIssuedAt = time.Time{}
		s.lastError = KindNetwork
		if errors.Is(err, ErrIssueLimited) {
			s.lastError = KindIssueLimited
		}
		if s.status == StatusActive && s.remainingLocked(now) == 0 {
			s.status = StatusExpired
		}
		result = err
	}
	t = s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)
	return result
}

func (s *Session) issue(ctx context.Context, target string) error {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, s.flow.Name, target)
		if err != nil {
			// the backend keeps its own limits, an unavailable limiter must not block codes
			s.logger.Warn("Issue limiter unavailable",
				zap.String("session_id", s.id),
				zap.Error(err))
		} else if !ok {
			return ErrIssueLimited
		}
	}
	if err := s.issuer.IssueCode(ctx, target); err != nil {
		return classifyIssueErr(err)
	}
	return nil
}

// SubmitCode verifies code against the outstanding challenge
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastUsed = now
	from := s.status

	switch from {
	case StatusActive:
		if s.remainingLocked(now) == 0 {
			s.status = StatusExpired
			s.lastError = KindCodeExpired
			t := s.changedLocked(from, now)
			s.mu.Unlock()
			s.notify(t)
			return ErrCodeExpired
		}
	case StatusExpired:
		s.lastError = KindCodeExpired
		t := s.changedLocked(from, now)
		s.mu.Unlock()
		s.notify(t)
		return ErrCodeExpired
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot submit a code while %s", ErrInvalidState, from)
	}

	if code == "" {
		s.lastError = KindEmptyCode
		t := s.changedLocked(from, now)
		s.mu.Unlock()
		s.notify(t)
		return ErrEmptyCode
	}

	s.attemptCode = code
	s.lastError = KindNone
	s.status = StatusVerifying
	target := s.target
	epoch, callCtx := s.beginCallLocked(ctx)
	t := s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)

	outcome, err := s.verifier.VerifyCode(callCtx, target, code)

	now = s.clock.Now()
	s.mu.Lock()
	if stale := s.endCallLocked(epoch); stale != nil {
		s.mu.Unlock()
		s.logger.Debug("Discarded verification result",
			zap.String("session_id", s.id),
			zap.String("outcome", outcome.String()),
			zap.NamedError("result", err))
		return stale
	}

	from = s.status
	var result error
	switch {
	case err != nil:
		s.status = StatusActive
		s.lastError = KindNetwork
		result = classifyCallErr(err)
	case outcome == OutcomeMatched:
		s.status = StatusVerified
		s.attemptCode = ""
	case outcome == OutcomeMismatch:
		// the countdown keeps running, a wrong guess buys no extra time
		s.status = StatusActive
		s.attemptCode = ""
		s.lastError = KindCodeMismatch
		result = ErrCodeMismatch
	case outcome == OutcomeExpired:
		s.status = StatusExpired
		s.attemptCode = ""
		s.lastError = KindCodeExpired
		result = ErrCodeExpired
	default:
		s.status = StatusActive
		s.lastError = KindNetwork
		result = fmt.Errorf("%w: unexpected verifier outcome %d", ErrNetwork, outcome)
	}
	if s.status == StatusActive && s.remainingLocked(now) == 0 {
		s.status = StatusExpired
	}
	t = s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)
	return result
}

// Tick recomputes the remaining time at now and expires an elapsed challenge.
// It never decrements anything, so any cadence and repeated calls are safe.
func (s *Session) Tick(now time.Time) Snapshot {
	s.mu.Lock()
	var t *Transition
	if !s.closed && s.status == StatusActive && s.remainingLocked(now) == 0 {
		from := s.status
		s.status = StatusExpired
		s.lastError = KindCodeExpired
		t = s.changedLocked(from, now)
	}
	snap := s.snapshotLocked(now)
	s.mu.Unlock()
	s.notify(t)
	return snap
}

// Reset abandons the step and returns to idle
func (s *Session) Reset() error {
	return s.resetWith(KindNone, "", 0)
}

// supersede resets the session if it still holds the issuance seq for
// target, after a newer challenge for the same target was issued elsewhere.
func (s *Session) supersede(target string, seq uint64) error {
	return s.resetWith(KindSuperseded, target, seq)
}

// issuance reports the target and sequence of the outstanding code, seq is
// zero when the session holds no live challenge.
func (s *Session) issuance() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.status != StatusActive {
		return "", 0
	}
	return s.target, s.issueSeq
}

func (s *Session) resetWith(reason Kind, onlyTarget string, onlySeq uint64) error {
	now := s.clock.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if onlyTarget != "" && s.target != onlyTarget {
		s.mu.Unlock()
		return ErrTargetChanged
	}
	if onlySeq != 0 && s.issueSeq != onlySeq {
		s.mu.Unlock()
		return fmt.Errorf("%w: challenge was reissued", ErrInvalidState)
	}
	if s.status.Terminal() {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: challenge already %s", ErrInvalidState, status)
	}
	s.lastUsed = now
	from := s.status
	s.cancelCallLocked()
	s.epoch++
	s.clearLocked()
	s.lastError = reason
	t := s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)
	return nil
}

// Close disposes the session: in-flight results are discarded, the
// countdown driver stops and every later call returns ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelCallLocked()
	s.stopDriverLocked()
	s.epoch++
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastUsed is the time of the last caller-initiated operation
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Snapshot returns the current view of the challenge
func (s *Session) Snapshot() Snapshot {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	remaining := 0
	if !s.issuedAt.IsZero() {
		remaining = ceilSeconds(s.remainingLocked(now))
	}
	snap := Snapshot{
		ID:               s.id,
		Flow:             s.flow.Name,
		Status:           s.status,
		Target:           s.target,
		IssuedAt:         s.issuedAt,
		TTLSeconds:       ceilSeconds(s.flow.TTL),
		RemainingSeconds: remaining,
		LastError:        s.lastError,
		Resends:          s.resends,
		Version:          s.version,
		AttemptCode:      s.attemptCode,
	}
	if s.target != "" {
		snap.MaskedTarget = util.MaskEmail(s.target)
	}
	if !s.closed {
		snap.CanRequest = s.status == StatusIdle || s.status == StatusActive || s.status == StatusExpired
		snap.CanSubmit = s.status == StatusActive && remaining > 0
	}
	return snap
}

// remainingLocked is max(0, ttl - (now - issuedAt))
func (s *Session) remainingLocked(now time.Time) time.Duration {
	if s.issuedAt.IsZero() {
		return 0
	}
	left := s.flow.TTL - now.Sub(s.issuedAt)
	if left < 0 {
		return 0
	}
	return left
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (s *Session) clearLocked() {
	s.status = StatusIdle
	s.target = ""
	s.issuedAt = time.Time{}
	s.prevIssuedAt = time.Time{}
	s.attemptCode = ""
	s.lastError = KindNone
	s.resends = 0
	s.issueSeq = 0
}

func (s *Session) beginCallLocked(parent context.Context) (uint64, context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	s.epoch++
	ctx, cancel := context.WithTimeout(parent, s.callTimeout)
	s.callCancel = cancel
	return s.epoch, ctx
}

// endCallLocked releases the call context and reports whether its result is stale
func (s *Session) endCallLocked(epoch uint64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.epoch != epoch {
		if s.lastError == KindSuperseded {
			return ErrSuperseded
		}
		return fmt.Errorf("%w: challenge was reset during the call", ErrInvalidState)
	}
	s.cancelCallLocked()
	return nil
}

func (s *Session) cancelCallLocked() {
	if s.callCancel != nil {
		s.callCancel()
		s.callCancel = nil
	}
}

// changedLocked records a mutation and keeps the countdown driver alive
// exactly while the challenge is active.
func (s *Session) changedLocked(from Status, now time.Time) *Transition {
	s.version++
	if from == StatusActive && s.status != StatusActive {
		s.stopDriverLocked()
	}
	if s.status == StatusActive && (from != StatusActive || s.stopDriver == nil) {
		s.startDriverLocked()
	}
	return &Transition{From: from, To: s.status, Snapshot: s.snapshotLocked(now), At: now}
}

func (s *Session) startDriverLocked() {
	s.stopDriverLocked()
	if s.tickInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.driverGen++
	s.stopDriver = cancel
	go s.drive(ctx, s.driverGen)
}

func (s *Session) stopDriverLocked() {
	if s.stopDriver != nil {
		s.stopDriver()
		s.stopDriver = nil
	}
}

func (s *Session) drive(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.driverTick(gen) {
				return
			}
		}
	}
}

// driverTick returns true once the driver has nothing left to do
func (s *Session) driverTick(gen uint64) bool {
	now := s.clock.Now()
	s.mu.Lock()
	if s.closed || gen != s.driverGen || s.status != StatusActive {
		s.mu.Unlock()
		return true
	}
	if s.remainingLocked(now) > 0 {
		s.mu.Unlock()
		return false
	}
	from := s.status
	s.status = StatusExpired
	s.lastError = KindCodeExpired
	t := s.changedLocked(from, now)
	s.mu.Unlock()
	s.notify(t)
	return true
}

func (s *Session) notify(t *Transition) {
	if t == nil {
		return
	}
	for _, o := range s.observers {
		o(*t)
	}
}
