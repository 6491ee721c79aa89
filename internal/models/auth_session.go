package models

import (
	"time"
)

// AuthSession holds the backend access token on behalf of a signed-in
// client. The client only ever sees SessionID.
type AuthSession struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	ClientIP     string    `json:"client_ip,omitempty"`
}

func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
