package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eatflow-gateway/internal/bucketing"
	"eatflow-gateway/internal/hashing"
	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"
)

const publishTimeout = 5 * time.Second

// Dispatcher publishes events from a single worker so observers never
// block a session on the broker.
type Dispatcher struct {
	publisher Publisher
	hasher    *hashing.Hasher
	bm        *bucketing.BucketingManager
	queue     chan *models.VerificationEvent
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(publisher Publisher, hasher *hashing.Hasher, bm *bucketing.BucketingManager, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	d := &Dispatcher{
		publisher: publisher,
		hasher:    hasher,
		bm:        bm,
		queue:     make(chan *models.VerificationEvent, bufferSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, event); err != nil {
			util.Warn("Failed to publish verification event",
				util.String("event_type", event.EventType),
				util.String("session_id", event.SessionID),
				util.ErrorField(err))
		}
		cancel()
	}
}

// Dispatch queues event, dropping it when the buffer is full or closed
func (d *Dispatcher) Dispatch(event *models.VerificationEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		if n := d.dropped.Add(1); n%100 == 1 {
			util.Warn("Verification event buffer full, dropping events", util.Any("dropped_total", n))
		}
	}
}

// Observe converts a session transition into an event
func (d *Dispatcher) Observe(tr verification.Transition) {
	d.Dispatch(d.eventFor(tr))
}

func (d *Dispatcher) eventFor(tr verification.Transition) *models.VerificationEvent {
	eventType := models.EventChallengeTransition
	switch tr.To {
	case verification.StatusVerified:
		eventType = models.EventChallengeVerified
	case verification.StatusFailed:
		eventType = models.EventChallengeFailed
	}
	event := &models.VerificationEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		EventTime:   tr.At.UTC(),
		EventBucket: d.bm.Bucket(tr.Snapshot.ID),
		SessionID:   tr.Snapshot.ID,
		Flow:        tr.Snapshot.Flow,
		FromStatus:  string(tr.From),
		ToStatus:    string(tr.To),
		LastError:   string(tr.Snapshot.LastError),
		Resends:     tr.Snapshot.Resends,
		Version:     tr.Snapshot.Version,
	}
	if tr.Snapshot.Target != "" {
		event.TargetHash = d.hasher.Target(tr.Snapshot.Target)
	}
	return event
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
