package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eatflow-gateway/internal/client"
	"eatflow-gateway/internal/hashing"
	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/repository"
	"eatflow-gateway/internal/util"
)

const authSessionPrefix = "auth_session"

// keyValue is the part of client.RedisClient the caches need
type keyValue interface {
	Key(parts ...string) string
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetXX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

var _ keyValue = (*client.RedisClient)(nil)

// AuthSessionCache stores sessions as JSON under a fingerprint of the
// session id, so a dump of redis holds no usable session ids.
type AuthSessionCache struct {
	client keyValue
	hasher *hashing.Hasher
}

func NewAuthSessionCache(c keyValue, hasher *hashing.Hasher) *AuthSessionCache {
	return &AuthSessionCache{client: c, hasher: hasher}
}

func (c *AuthSessionCache) key(sessionID string) string {
	return c.client.Key(authSessionPrefix, c.hasher.Fingerprint(authSessionPrefix, sessionID))
}

func (c *AuthSessionCache) Save(ctx context.Context, session *models.AuthSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.client.Set(ctx, c.key(session.SessionID), payload, ttl); err != nil {
		util.Error("Failed to store auth session", zap.Error(err))
		return fmt.Errorf("failed to store auth session: %w", err)
	}
	util.Debug("Auth session stored",
		zap.String("user_id", session.UserID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *AuthSessionCache) Get(ctx context.Context, sessionID string) (*models.AuthSession, error) {
	raw, err := c.client.Get(ctx, c.key(sessionID))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load auth session: %w", err)
	}
	var session models.AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Touch slides the expiry of a live session. The write is SET XX so a
// logout racing the refresh is never undone.
func (c *AuthSessionCache) Touch(ctx context.Context, sessionID string, now, expiresAt time.Time) error {
	session, err := c.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastActivity = now
	session.ExpiresAt = expiresAt

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := c.client.SetXX(ctx, c.key(sessionID), payload, ttl)
	if err != nil {
		return fmt.Errorf("failed to refresh auth session: %w", err)
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (c *AuthSessionCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)); err != nil {
		return fmt.Errorf("failed to delete auth session: %w", err)
	}
	return nil
}

var _ repository.AuthSessionStore = (*AuthSessionCache)(nil)
