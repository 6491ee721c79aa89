package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eatflow-gateway/internal/backend"
	"eatflow-gateway/internal/bucketing"
	"eatflow-gateway/internal/client"
	"eatflow-gateway/internal/config"
	"eatflow-gateway/internal/events"
	"eatflow-gateway/internal/hashing"
	"eatflow-gateway/internal/repository"
	"eatflow-gateway/internal/repository/memory"
	redisrepo "eatflow-gateway/internal/repository/redis"
	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/tls"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"
)

const memoryPurgeInterval = time.Minute

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer
	backendClient *backend.Client

	hasher           *hashing.Hasher
	bucketingManager *bucketing.BucketingManager

	registry     *verification.Registry
	dispatcher   *events.Dispatcher
	sessionStore repository.AuthSessionStore
	issueLimiter verification.IssueLimiter

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads config, initializes logging and builds every dependency
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(util.LogOptions{
		Environment: cfg.Environment,
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})

	return New(cfg)
}

// New builds the dependency graph for cfg
func New(cfg *config.Config) (*Factory, error) {
	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.TLS.Enabled {
		m, err := tls.NewManager(cfg.Server.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tls: %w", err)
		}
		f.tlsManager = m
	}

	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	f.initializeRepositories()
	f.initializeVerification()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("backend", cfg.Backend.BaseURL),
		util.Bool("tls_enabled", f.tlsManager != nil),
		util.Bool("redis_enabled", f.redisClient != nil),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
	)
	return f, nil
}

// initializeManagers initializes hashing and bucketing managers
func (f *Factory) initializeManagers() error {
	hasher, err := hashing.NewHasher(f.config.Hashing.TargetKey)
	if err != nil {
		return err
	}
	f.hasher = hasher
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing.RegistryShards)
	return nil
}

// initializeClients connects the optional infrastructure clients
func (f *Factory) initializeClients() error {
	f.backendClient = backend.NewClient(f.config.Backend.BaseURL, f.config.Backend.Timeout)

	var initErrors []error

	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning - falling back to in-memory stores", util.ErrorField(err))
		}
	}
	return nil
}

// initializeRepositories picks redis backed stores when redis is up
func (f *Factory) initializeRepositories() {
	window, max := f.config.Verification.IssueWindow, f.config.Verification.IssueMax

	if f.redisClient != nil {
		f.sessionStore = redisrepo.NewAuthSessionCache(f.redisClient, f.hasher)
		if max > 0 {
			f.issueLimiter = redisrepo.NewIssueLimitCache(f.redisClient, f.hasher, f.bucketingManager, window, max)
		}
		return
	}

	store := memory.NewAuthSessionStore()
	f.sessionStore = store
	if max > 0 {
		f.issueLimiter = memory.NewIssueLimiter(window, max)
	}
	go f.purgeLoop(store)
}

func (f *Factory) purgeLoop(store *memory.AuthSessionStore) {
	ticker := time.NewTicker(memoryPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.closed:
			return
		case <-ticker.C:
			if n := store.Purge(); n > 0 {
				util.Debug("Purged expired auth sessions", util.Int("count", n))
			}
		}
	}
}

func (f *Factory) initializeVerification() {
	var publisher events.Publisher = events.LogPublisher{}
	if f.kafkaProducer != nil {
		publisher = events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.EventTopic)
	}
	f.dispatcher = events.NewDispatcher(publisher, f.hasher, f.bucketingManager, f.config.Kafka.BufferSize)

	f.registry = verification.NewRegistry(f.bucketingManager,
		verification.WithIdleTimeout(f.config.Verification.IdleTimeout),
		verification.WithRegistryLogger(util.Get().Named("registry")),
	)
	f.registry.StartJanitor(0, verification.SystemClock)
}

// ServiceFactory returns the service factory (singleton)
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.backendClient,
			f.registry,
			f.issueLimiter,
			f.sessionStore,
			util.Get(),
			f.dispatcher.Observe,
		)
	}
	return f.serviceFactory
}

// HealthCheck pings every enabled client
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.registry == nil {
		healthErrors["registry"] = fmt.Errorf("registry not initialized")
	}
	return healthErrors
}

// IsHealthy ignores kafka, events are best effort
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Ready adapts IsHealthy for the router's health endpoint
func (f *Factory) Ready(ctx context.Context) error {
	for name, err := range f.HealthCheck(ctx) {
		if name == "kafka" {
			continue
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (f *Factory) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		// stop the challenges before the dispatcher drains
		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
		}
		if f.registry != nil {
			f.registry.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if f.dispatcher != nil {
			if derr := f.dispatcher.Close(ctx); derr != nil {
				util.Warn("Verification events not fully drained", util.ErrorField(derr))
			}
		}

		var g errgroup.Group
		if f.kafkaProducer != nil {
			g.Go(func() error {
				if err := f.kafkaProducer.Close(); err != nil {
					return fmt.Errorf("kafka: %w", err)
				}
				util.Info("Kafka producer closed")
				return nil
			})
		}
		if f.redisClient != nil {
			g.Go(func() error {
				if err := f.redisClient.Close(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
				util.Info("Redis client closed")
				return nil
			})
		}
		if err = g.Wait(); err != nil {
			util.Error("Failed to close clients", util.ErrorField(err))
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return err
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// TLSManager is nil when TLS is disabled
func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
