// Package repository defines the storage contracts of the gateway; redis
// and memory provide the implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"eatflow-gateway/internal/models"
)

var ErrNotFound = errors.New("not found")

// AuthSessionStore keeps signed-in sessions until they expire
type AuthSessionStore interface {
	Save(ctx context.Context, session *models.AuthSession) error
	Get(ctx context.Context, sessionID string) (*models.AuthSession, error)
	// Touch extends a session to expiresAt and records activity
	Touch(ctx context.Context, sessionID string, now, expiresAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
}
