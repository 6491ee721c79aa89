package factory

import (
	"context"
	"testing"

	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/repository/memory"
)

func TestNewWithoutInfrastructure(t *testing.T) {
	cfg := config.Default()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new factory failed: %v", err)
	}

	if _, ok := f.sessionStore.(*memory.AuthSessionStore); !ok {
		t.Fatalf("want in-memory session store got %T", f.sessionStore)
	}
	if f.issueLimiter == nil {
		t.Fatalf("issue limiter must be configured when issue_max > 0")
	}
	if sf := f.ServiceFactory(); sf != f.ServiceFactory() {
		t.Fatalf("service factory must be a singleton")
	}
	if !f.IsHealthy(context.Background()) || f.Ready(context.Background()) != nil {
		t.Fatalf("factory without redis must be healthy: %v", f.HealthCheck(context.Background()))
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	f.WaitForClose()
}

func TestNewRejectsBadHashKey(t *testing.T) {
	cfg := config.Default()
	cfg.Hashing.TargetKey = "short"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for a short hashing key")
	}
}

func TestIssueLimitDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Verification.IssueMax = 0
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new factory failed: %v", err)
	}
	defer f.Close()
	if f.issueLimiter != nil {
		t.Fatalf("want no limiter got %T", f.issueLimiter)
	}
}
