package verification

import (
	"context"
	"errors"
)

// Kind classifies why an operation on a challenge failed
type Kind string

const (
	KindNone                Kind = ""
	KindInvalidTargetFormat Kind = "invalid_target_format"
	KindRejectedTarget      Kind = "rejected_target"
	KindNetwork             Kind = "network_error"
	KindCodeMismatch        Kind = "code_mismatch"
	KindCodeExpired         Kind = "code_expired"
	KindInvalidState        Kind = "invalid_state"
	KindEmptyCode           Kind = "empty_code"
	KindTargetChanged       Kind = "target_changed"
	KindResendLimit         Kind = "resend_limit_exceeded"
	KindIssueLimited        Kind = "issue_limited"
	KindSuperseded          Kind = "superseded"
	KindSessionClosed       Kind = "session_closed"
)

var (
	ErrInvalidTargetFormat = errors.New("invalid email format")
	ErrRejectedTarget      = errors.New("target rejected by issuer")
	ErrNetwork             = errors.New("network error")
	ErrCodeMismatch        = errors.New("verification code does not match")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrInvalidState        = errors.New("operation not allowed in current state")
	ErrEmptyCode           = errors.New("verification code is empty")
	ErrTargetChanged       = errors.New("target differs from issued challenge")
	ErrResendLimit         = errors.New("resend limit exceeded")
	ErrIssueLimited        = errors.New("too many codes issued for this address, try again later")
	ErrSuperseded          = errors.New("challenge superseded by a newer one")
	ErrSessionClosed       = errors.New("verification session closed")
	ErrSessionNotFound     = errors.New("verification session not found")
)

var kindBySentinel = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidTargetFormat, KindInvalidTargetFormat},
	{ErrRejectedTarget, KindRejectedTarget},
	{ErrCodeMismatch, KindCodeMismatch},
	{ErrCodeExpired, KindCodeExpired},
	{ErrInvalidState, KindInvalidState},
	{ErrEmptyCode, KindEmptyCode},
	{ErrTargetChanged, KindTargetChanged},
	{ErrResendLimit, KindResendLimit},
	{ErrIssueLimited, KindIssueLimited},
	{ErrSuperseded, KindSuperseded},
	{ErrSessionClosed, KindSessionClosed},
	{ErrSessionNotFound, KindSessionClosed},
	{ErrNetwork, KindNetwork},
}

// KindOf maps an error returned by this package to its kind.
// Unknown errors, including context deadlines, count as network errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindBySentinel {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindNetwork
}

// Err returns the sentinel for a kind, nil for KindNone
func (k Kind) Err() error {
	for _, entry := range kindBySentinel {
		if entry.kind == k {
			return entry.err
		}
	}
	return nil
}

// classifyIssueErr collapses collaborator failures to RejectedTarget or NetworkError
func classifyIssueErr(err error) error {
	if errors.Is(err, ErrRejectedTarget) {
		return err
	}
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return &wrapped{sentinel: ErrNetwork, cause: err}
}

func classifyCallErr(err error) error {
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return &wrapped{sentinel: ErrNetwork, cause: err}
}

// wrapped keeps both the sentinel and the transport cause reachable by errors.Is
type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	if errors.Is(w.cause, context.DeadlineExceeded) {
		return w.sentinel.Error() + ": request timed out"
	}
	return w.sentinel.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.sentinel, w.cause}
}
