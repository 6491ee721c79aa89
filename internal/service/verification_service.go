package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"
)

// VerificationService creates challenges per flow and drives them
// through the registry.
type VerificationService struct {
	cfg       config.VerificationConfig
	registry  *verification.Registry
	issuer    verification.Issuer
	verifier  verification.Verifier
	limiter   verification.IssueLimiter
	observers []verification.Observer
	flows     map[string]verification.Flow
	logger    *zap.Logger
}

func NewVerificationService(
	cfg config.VerificationConfig,
	registry *verification.Registry,
	issuer verification.Issuer,
	verifier verification.Verifier,
	limiter verification.IssueLimiter,
	logger *zap.Logger,
	observers ...verification.Observer,
) *VerificationService {
	flows := make(map[string]verification.Flow)
	for name, fc := range cfg.Flows() {
		flows[name] = verification.Flow{Name: name, TTL: fc.TTL, MaxResends: fc.MaxResends}
	}
	s := &VerificationService{
		cfg:      cfg,
		registry: registry,
		issuer:   issuer,
		verifier: verifier,
		limiter:  limiter,
		flows:    flows,
		logger:   logger,
	}
	s.observers = append([]verification.Observer{s.logTransition}, observers...)
	return s
}

func (s *VerificationService) logTransition(tr verification.Transition) {
	fields := []zap.Field{
		zap.String("session_id", tr.Snapshot.ID),
		zap.String("flow", tr.Snapshot.Flow),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Int("remaining_seconds", tr.Snapshot.RemainingSeconds),
	}
	if tr.Snapshot.MaskedTarget != "" {
		fields = append(fields, zap.String("target", tr.Snapshot.MaskedTarget))
	}
	if tr.Snapshot.LastError != verification.KindNone {
		fields = append(fields, zap.String("last_error", string(tr.Snapshot.LastError)))
		s.logger.Info("Verification transition", fields...)
		return
	}
	s.logger.Debug("Verification transition", fields...)
}

// Start opens a new idle challenge for flow
func (s *VerificationService) Start(flow string) (verification.Snapshot, error) {
	f, ok := s.flows[flow]
	if !ok {
		return verification.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	opts := []verification.Option{
		verification.WithTickInterval(s.cfg.TickInterval),
		verification.WithCallTimeout(s.cfg.CallTimeout),
		verification.WithLogger(s.logger),
	}
	if s.limiter != nil {
		opts = append(opts, verification.WithIssueLimiter(s.limiter))
	}
	for _, o := range s.observers {
		opts = append(opts, verification.WithObserver(o))
	}
	session, err := verification.NewSession(f, s.issuer, s.verifier, opts...)
	if err != nil {
		return verification.Snapshot{}, err
	}
	s.registry.Add(session)
	util.Debug("Verification session started",
		util.String("session_id", session.ID()),
		util.String("flow", flow))
	return session.Snapshot(), nil
}

func (s *VerificationService) Get(id string) (verification.Snapshot, error) {
	return s.registry.Snapshot(id)
}

func (s *VerificationService) RequestCode(ctx context.Context, id, email string) (verification.Snapshot, error) {
	return s.registry.RequestCode(ctx, id, email)
}

func (s *VerificationService) SubmitCode(ctx context.Context, id, code string) (verification.Snapshot, error) {
	return s.registry.SubmitCode(ctx, id, code)
}

func (s *VerificationService) Reset(id string) (verification.Snapshot, error) {
	return s.registry.Reset(id)
}

// Discard closes the challenge, e.g. when its screen goes away
func (s *VerificationService) Discard(id string) error {
	return s.registry.Remove(id)
}

// VerifiedTarget returns the email proven by a verified challenge of flow
func (s *VerificationService) VerifiedTarget(id, flow string) (string, error) {
	snap, err := s.registry.Snapshot(id)
	if err != nil {
		return "", err
	}
	if snap.Flow != flow {
		return "", ErrWrongFlow
	}
	if snap.Status != verification.StatusVerified {
		return "", ErrNotVerified
	}
	return snap.Target, nil
}

func (s *VerificationService) Close() {
	s.registry.Close()
}
