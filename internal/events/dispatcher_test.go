package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"eatflow-gateway/internal/bucketing"
	"eatflow-gateway/internal/hashing"
	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/verification"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.VerificationEvent
	block  chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, event *models.VerificationEvent) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Events() []*models.VerificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.VerificationEvent(nil), p.events...)
}

func newTestDispatcher(t *testing.T, pub Publisher, buffer int) *Dispatcher {
	t.Helper()
	h, err := hashing.NewHasher(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("new hasher failed: %v", err)
	}
	return NewDispatcher(pub, h, bucketing.NewBucketingManager(8), buffer)
}

func TestDispatcherPublishesTransitions(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDispatcher(t, pub, 8)

	now := time.Now()
	d.Observe(verification.Transition{
		From: verification.StatusVerifying,
		To:   verification.StatusVerified,
		At:   now,
		Snapshot: verification.Snapshot{
			ID:      "sess-1",
			Flow:    verification.FlowSignup,
			Status:  verification.StatusVerified,
			Target:  "user@example.com",
			Version: 4,
		},
	})
	d.Observe(verification.Transition{
		From:     verification.StatusIdle,
		To:       verification.StatusIdle,
		At:       now,
		Snapshot: verification.Snapshot{ID: "sess-2", LastError: verification.KindInvalidTargetFormat},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := pub.Events()
	if len(events) != 2 {
		t.Fatalf("want 2 events got %d", len(events))
	}
	first := events[0]
	if first.EventType != models.EventChallengeVerified || first.SessionID != "sess-1" || first.Version != 4 {
		t.Fatalf("unexpected event: %+v", first)
	}
	if first.TargetHash == "" || strings.Contains(first.TargetHash, "user") {
		t.Fatalf("target must be fingerprinted: %q", first.TargetHash)
	}
	if events[1].TargetHash != "" || events[1].LastError != string(verification.KindInvalidTargetFormat) {
		t.Fatalf("unexpected event: %+v", events[1])
	}

	// dispatch after close is a no-op
	d.Dispatch(&models.VerificationEvent{})
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	d := newTestDispatcher(t, pub, 1)

	for i := 0; i < 10; i++ {
		d.Dispatch(&models.VerificationEvent{SessionID: "s"})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected dropped events with a full buffer")
	}
	close(pub.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaPublisher(prod, "eatflow.events")
	event := &models.VerificationEvent{EventID: "e1", EventType: models.EventChallengeFailed, SessionID: "sess-9"}

	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if prod.topic != "eatflow.events" || string(prod.key) != "sess-9" {
		t.Fatalf("unexpected message routing: %s %s", prod.topic, prod.key)
	}
	if prod.headers["event_type"] != models.EventChallengeFailed {
		t.Fatalf("missing event_type header: %#v", prod.headers)
	}
	var decoded models.VerificationEvent
	if err := json.Unmarshal(prod.value, &decoded); err != nil || decoded.EventID != "e1" {
		t.Fatalf("unexpected payload %s (%v)", prod.value, err)
	}
}
