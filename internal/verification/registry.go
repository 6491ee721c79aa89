package verification

import (
	"context"
	"sync"
	"time"

	"eatflow-gateway/internal/bucketing"

	"go.uber.org/zap"
)

const defaultIdleTimeout = 15 * time.Minute

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

type claimKey struct {
	flow   string
	target string
}

// claimHolder is the session holding a target and the seq of its issuance
type claimHolder struct {
	id  string
	seq uint64
}

// Registry holds the live sessions and guarantees at most one active
// challenge per (flow, target). The latest successful issuance wins by
// issuance order, not by the order claims arrive, and the other holder is
// superseded.
type Registry struct {
	bm          *bucketing.BucketingManager
	shards      []*shard
	idleTimeout time.Duration
	logger      *zap.Logger

	claimsMu sync.Mutex
	claims   map[claimKey]claimHolder

	stopOnce sync.Once
	stop     chan struct{}
}

type RegistryOption func(*Registry)

func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(bm *bucketing.BucketingManager, opts ...RegistryOption) *Registry {
	if bm == nil {
		bm = bucketing.NewBucketingManager(0)
	}
	r := &Registry{
		bm:          bm,
		shards:      make([]*shard, bm.Buckets()),
		idleTimeout: defaultIdleTimeout,
		logger:      zap.NewNop(),
		claims:      make(map[claimKey]claimHolder),
		stop:        make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[r.bm.Bucket(id)]
}

// Add registers a session under its id
func (r *Registry) Add(s *Session) {
	sh := r.shardFor(s.ID())
	sh.mu.Lock()
	sh.sessions[s.ID()] = s
	sh.mu.Unlock()
}

// Get returns a live session
func (r *Registry) Get(id string) (*Session, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// RequestCode runs RequestCode on the session and claims its target on success.
// A session that lost its claim to a newer issuance reports ErrSuperseded.
func (r *Registry) RequestCode(ctx context.Context, id, target string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	err = s.RequestCode(ctx, target)
	if err == nil && !r.claim(s) {
		err = ErrSuperseded
	}
	return s.Snapshot(), err
}

func (r *Registry) SubmitCode(ctx context.Context, id, code string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	err = s.SubmitCode(ctx, code)
	return s.Snapshot(), err
}

// Snapshot reads a session, expiring it first if its time ran out
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Tick(s.clock.Now()), nil
}

func (r *Registry) Reset(id string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	target := s.Snapshot().Target
	if err := s.Reset(); err != nil {
		return s.Snapshot(), err
	}
	r.release(s, target)
	return s.Snapshot(), nil
}

// Remove closes the session and forgets it
func (r *Registry) Remove(id string) error {
	sh := r.shardFor(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	target := s.Snapshot().Target
	s.Close()
	r.release(s, target)
	return nil
}

// claim records s as holder of its issued target unless a newer issuance
// already holds it; it returns false when s itself was superseded.
func (r *Registry) claim(s *Session) bool {
	target, seq := s.issuance()
	if seq == 0 {
		return true
	}
	key := claimKey{flow: s.flow.Name, target: target}
	mine := claimHolder{id: s.ID(), seq: seq}

	var loser claimHolder
	r.claimsMu.Lock()
	cur, held := r.claims[key]
	switch {
	case !held || cur.id == s.ID() || cur.seq < seq:
		r.claims[key] = mine
		if held && cur.id != s.ID() {
			loser = cur
		}
	default:
		loser = mine
	}
	r.claimsMu.Unlock()

	if loser.id == "" {
		return true
	}
	prev, err := r.Get(loser.id)
	if err != nil {
		return loser.id != s.ID()
	}
	if err := prev.supersede(target, loser.seq); err != nil {
		r.logger.Debug("Previous challenge not superseded",
			zap.String("session_id", loser.id),
			zap.Error(err))
		return true
	}
	r.logger.Info("Challenge superseded",
		zap.String("flow", s.flow.Name),
		zap.String("session_id", loser.id))
	return loser.id != s.ID()
}

func (r *Registry) release(s *Session, target string) {
	if target == "" {
		return
	}
	key := claimKey{flow: s.flow.Name, target: target}
	r.claimsMu.Lock()
	if r.claims[key].id == s.ID() {
		delete(r.claims, key)
	}
	r.claimsMu.Unlock()
}

// holder returns the session id currently holding (flow, target)
func (r *Registry) holder(flow, target string) string {
	r.claimsMu.Lock()
	defer r.claimsMu.Unlock()
	return r.claims[claimKey{flow: flow, target: target}].id
}

// Sweep removes sessions idle since before now - idleTimeout
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTimeout)
	var stale []string
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, s := range sh.sessions {
			if s.Closed() || s.LastUsed().Before(cutoff) {
				stale = append(stale, id)
			}
		}
		sh.mu.RUnlock()
	}
	for _, id := range stale {
		_ = r.Remove(id)
	}
	if len(stale) > 0 {
		r.logger.Debug("Swept idle verification sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// StartJanitor sweeps idle sessions every interval until Close
func (r *Registry) StartJanitor(interval time.Duration, clock Clock) {
	if interval <= 0 {
		interval = r.idleTimeout / 2
	}
	if clock == nil {
		clock = SystemClock
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.Sweep(clock.Now())
			}
		}
	}()
}

// Close stops the janitor and closes every session
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			s.Close()
			delete(sh.sessions, id)
		}
		sh.mu.Unlock()
	}
	r.claimsMu.Lock()
	r.claims = make(map[claimKey]claimHolder)
	r.claimsMu.Unlock()
}
