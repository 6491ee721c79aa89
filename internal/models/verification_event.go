package models

import (
	"time"
)

const (
	EventChallengeTransition = "verification.transition"
	EventChallengeVerified   = "verification.verified"
	EventChallengeFailed     = "verification.failed"
)

// VerificationEvent is published for every challenge transition.
// The target is only carried as a keyed fingerprint.
type VerificationEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	EventTime   time.Time `json:"event_time"`
	EventBucket int       `json:"event_bucket"`
	SessionID   string    `json:"session_id"`
	Flow        string    `json:"flow"`
	FromStatus  string    `json:"from_status"`
	ToStatus    string    `json:"to_status"`
	TargetHash  string    `json:"target_hash,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Resends     int       `json:"resends"`
	Version     uint64    `json:"version"`
}

// Key partitions events so one session's transitions stay ordered
func (e *VerificationEvent) Key() string {
	return e.SessionID
}
