// Package memory holds process-local stores used when redis is disabled
package memory

import (
	"context"
	"sync"
	"time"

	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/repository"
)

type AuthSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.AuthSession
	now      func() time.Time
}

func NewAuthSessionStore() *AuthSessionStore {
	return &AuthSessionStore{sessions: make(map[string]models.AuthSession), now: time.Now}
}

func (s *AuthSessionStore) Save(_ context.Context, session *models.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = *session
	return nil
}

func (s *AuthSessionStore) Get(_ context.Context, sessionID string) (*models.AuthSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	if session.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (s *AuthSessionStore) Touch(ctx context.Context, sessionID string, now, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Expired(s.now()) {
		return repository.ErrNotFound
	}
	session.LastActivity = now
	session.ExpiresAt = expiresAt
	s.sessions[sessionID] = session
	return nil
}

func (s *AuthSessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Purge drops expired sessions
func (s *AuthSessionStore) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

type issueWindow struct {
	start int64
	count int
}

// IssueLimiter is the single-instance counterpart of the redis issue limiter
type IssueLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	windows map[string]issueWindow
	current int64
	now     func() time.Time
}

func NewIssueLimiter(window time.Duration, max int) *IssueLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &IssueLimiter{window: window, max: max, windows: make(map[string]issueWindow), now: time.Now}
}

func (l *IssueLimiter) Allow(_ context.Context, flow, target string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	start := l.now().Truncate(l.window).Unix()
	key := flow + "|" + target

	l.mu.Lock()
	defer l.mu.Unlock()
	if start != l.current {
		// counters from earlier windows are dead once the window rolls
		for k, w := range l.windows {
			if w.start != start {
				delete(l.windows, k)
			}
		}
		l.current = start
	}
	w := l.windows[key]
	if w.start != start {
		w = issueWindow{start: start}
	}
	w.count++
	l.windows[key] = w
	return w.count <= l.max, nil
}

var _ repository.AuthSessionStore = (*AuthSessionStore)(nil)
