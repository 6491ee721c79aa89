package service

import (
	"sync"

	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/repository"
	"eatflow-gateway/internal/verification"

	"go.uber.org/zap"
)

// Backend is everything the services need from the EatFlow API
type Backend interface {
	verification.Issuer
	verification.Verifier
	AccountBackend
	MealBackend
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg       *config.Config
	backend   Backend
	registry  *verification.Registry
	limiter   verification.IssueLimiter
	sessions  repository.AuthSessionStore
	observers []verification.Observer
	logger    *zap.Logger

	once          sync.Once
	verifications *VerificationService
	accounts      *AccountService
	meals         *MealService
}

func NewServiceFactory(
	cfg *config.Config,
	b Backend,
	registry *verification.Registry,
	limiter verification.IssueLimiter,
	sessions repository.AuthSessionStore,
	logger *zap.Logger,
	observers ...verification.Observer,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:       cfg,
		backend:   b,
		registry:  registry,
		limiter:   limiter,
		sessions:  sessions,
		observers: observers,
		logger:    logger,
	}
}

func (f *ServiceFactory) init() {
	f.once.Do(func() {
		f.verifications = NewVerificationService(
			f.cfg.Verification,
			f.registry,
			f.backend,
			f.backend,
			f.limiter,
			f.logger.Named("verification"),
			f.observers...,
		)
		f.accounts = NewAccountService(f.backend, f.verifications, f.sessions, f.cfg.Session.TTL, f.logger.Named("account"))
		f.meals = NewMealService(f.backend, f.accounts, f.logger.Named("meal"))
	})
}

func (f *ServiceFactory) VerificationService() *VerificationService {
	f.init()
	return f.verifications
}

func (f *ServiceFactory) AccountService() *AccountService {
	f.init()
	return f.accounts
}

func (f *ServiceFactory) MealService() *MealService {
	f.init()
	return f.meals
}

// Cleanup closes every open verification session
func (f *ServiceFactory) Cleanup() {
	if f.verifications != nil {
		f.verifications.Close()
	}
}
