package verification

import (
	"context"
	"time"
)

// Status is the position of a challenge in its lifecycle
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusVerifying  Status = "verifying"
	StatusVerified   Status = "verified"
	StatusFailed     Status = "failed"
)

// Steady reports whether no network call is in flight
func (s Status) Steady() bool {
	return s != StatusRequesting && s != StatusVerifying
}

// Terminal reports whether the challenge can no longer change
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// Flow is the per-step policy a challenge runs under
type Flow struct {
	Name string
	TTL  time.Duration
	// MaxResends bounds reissues after the first code; 0 means unlimited
	MaxResends int
}

const (
	FlowFindID        = "find_id"
	FlowSignup        = "signup"
	FlowPasswordReset = "password_reset"
)

// Outcome is the verifier's answer for a submitted code
type Outcome int

const (
	OutcomeMatched Outcome = iota + 1
	OutcomeMismatch
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Issuer dispatches a one-time code to target.
// Returning an error wrapping ErrRejectedTarget means the target was refused;
// any other error is treated as a network failure.
type Issuer interface {
	IssueCode(ctx context.Context, target string) error
}

// Verifier checks a submitted code; a non-nil error is a network failure
type Verifier interface {
	VerifyCode(ctx context.Context, target, code string) (Outcome, error)
}

// IssueLimiter is an optional shared budget of issuances per flow and target
type IssueLimiter interface {
	Allow(ctx context.Context, flow, target string) (bool, error)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Snapshot is a consistent read-only view of a challenge
type Snapshot struct {
	ID               string    `json:"id"`
	Flow             string    `json:"flow"`
	Status           Status    `json:"status"`
	Target           string    `json:"-"`
	MaskedTarget     string    `json:"target,omitempty"`
	IssuedAt         time.Time `json:"issued_at,omitempty"`
	TTLSeconds       int       `json:"ttl_seconds"`
	RemainingSeconds int       `json:"remaining_seconds"`
	LastError        Kind      `json:"last_error,omitempty"`
	Resends          int       `json:"resends"`
	CanRequest       bool      `json:"can_request"`
	CanSubmit        bool      `json:"can_submit"`
	Version          uint64    `json:"version"`
	AttemptCode      string    `json:"-"`
}

// Transition is delivered to observers after every state change
type Transition struct {
	From     Status
	To       Status
	Snapshot Snapshot
	At       time.Time
}

// Observer receives transitions outside the session lock
type Observer func(Transition)
