package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/repository"
)

func TestAuthSessionStoreExpiry(t *testing.T) {
	store := NewAuthSessionStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, &models.AuthSession{SessionID: "a", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := store.Get(ctx, "a"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := store.Touch(ctx, "a", now, now.Add(time.Hour)); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	now = now.Add(30 * time.Minute)
	if _, err := store.Get(ctx, "a"); err != nil {
		t.Fatalf("touched session should still be valid: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := store.Get(ctx, "a"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want not found got %v", err)
	}
	if err := store.Touch(ctx, "a", now, now.Add(time.Hour)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want not found got %v", err)
	}
}

func TestAuthSessionStorePurge(t *testing.T) {
	store := NewAuthSessionStore()
	now := time.Now()
	ctx := context.Background()
	_ = store.Save(ctx, &models.AuthSession{SessionID: "old", ExpiresAt: now.Add(-time.Second)})
	_ = store.Save(ctx, &models.AuthSession{SessionID: "new", ExpiresAt: now.Add(time.Hour)})

	if n := store.Purge(); n != 1 {
		t.Fatalf("want 1 purged got %d", n)
	}
	if err := store.Delete(ctx, "new"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "new"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want not found got %v", err)
	}
}

func TestIssueLimiterWindow(t *testing.T) {
	limiter := NewIssueLimiter(time.Hour, 1)
	now := time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "signup", "a@b.co"); !ok {
		t.Fatalf("first issuance should pass")
	}
	if ok, _ := limiter.Allow(ctx, "signup", "a@b.co"); ok {
		t.Fatalf("second issuance should be limited")
	}
	if ok, _ := limiter.Allow(ctx, "find_id", "c@d.co"); !ok {
		t.Fatalf("other keys have their own budget")
	}
	now = now.Add(time.Hour)
	if ok, _ := limiter.Allow(ctx, "signup", "a@b.co"); !ok {
		t.Fatalf("next window should pass")
	}
	if len(limiter.windows) != 1 {
		t.Fatalf("want stale windows pruned, got %d entries", len(limiter.windows))
	}
	unlimited := NewIssueLimiter(time.Hour, 0)
	for i := 0; i < 5; i++ {
		if ok, _ := unlimited.Allow(ctx, "signup", "a@b.co"); !ok {
			t.Fatalf("zero max means unlimited")
		}
	}
}
