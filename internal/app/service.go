// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/mudra/internal/adapters/repository"
	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/gateway"
	"github.com/okian/mudra/pkg/logger"
	"github.com/okian/mudra/pkg/metrics"

	// Postgres driver, registered for database/sql.
	_ "github.com/lib/pq"
)

// Default service configuration.
const (
	defaultPruneInterval   = 10 * time.Minute
	defaultBucketRetention = 24 * time.Hour
)

// Service implements the API dependencies for the gesture game backend.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	gateway *gateway.Gateway
	db      *sql.DB

	// Configuration
	postgresDSN     string
	rateLimit       int
	rateWindow      time.Duration
	dailyTarget     int
	weeklyTarget    int
	pruneInterval   time.Duration
	bucketRetention time.Duration

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPostgresDSN selects the Postgres store. An empty DSN keeps the
// in-memory store, which suits tests and single-node setups.
func WithPostgresDSN(dsn string) Option {
	return func(s *Service) {
		s.postgresDSN = dsn
	}
}

// WithRateLimit sets the per-identity call budget per window.
func WithRateLimit(maxCalls int, window time.Duration) Option {
	return func(s *Service) {
		if maxCalls > 0 {
			s.rateLimit = maxCalls
		}
		if window > 0 {
			s.rateWindow = window
		}
	}
}

// WithQuestTargets sets the per-period quest completion targets.
func WithQuestTargets(daily, weekly int) Option {
	return func(s *Service) {
		if daily > 0 {
			s.dailyTarget = daily
		}
		if weekly > 0 {
			s.weeklyTarget = weekly
		}
	}
}

// WithPruneInterval sets how often expired rate buckets are dropped.
func WithPruneInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pruneInterval = interval
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		rateLimit:       60,
		rateWindow:      time.Minute,
		dailyTarget:     1,
		weeklyTarget:    3,
		pruneInterval:   defaultPruneInterval,
		bucketRetention: defaultBucketRetention,
		stopCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting gesture gateway service...")

	if s.postgresDSN != "" {
		db, err := sql.Open("postgres", s.postgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		store, err := repository.NewPostgresStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("init postgres store: %w", err)
		}
		s.db = db
		s.store = store
		s.logger.Info(ctx, "using postgres store")
	} else {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.gateway = gateway.New(s.store,
		gateway.WithLogger(s.logger.Named("gateway")),
		gateway.WithRateLimit(s.rateLimit, s.rateWindow),
		gateway.WithQuestTargets(s.dailyTarget, s.weeklyTarget),
	)

	go s.maintenanceLoop()

	s.started = true
	s.logger.Info(ctx, "gesture gateway service started",
		logger.Int("rateLimit", s.rateLimit),
		logger.String("rateWindow", s.rateWindow.String()),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping gesture gateway service...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if s.db != nil {
		_ = s.db.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "gesture gateway service stopped")
}

// maintenanceLoop prunes stale rate buckets and refreshes system gauges.
func (s *Service) maintenanceLoop() {
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			horizon := time.Now().UTC().Add(-s.bucketRetention)
			if n, err := s.store.PruneBuckets(ctx, horizon); err != nil {
				s.logger.Warn(ctx, "bucket prune failed", logger.Error(err))
			} else if n > 0 {
				s.logger.Debug(ctx, "pruned rate buckets", logger.Int("removed", n))
			}
			cancel()

			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			metrics.UpdateSystemMemoryUsage(ms.Alloc)
		}
	}
}

// IssueRunToken delegates to the gateway.
func (s *Service) IssueRunToken(ctx context.Context, req gateway.IssueTokenRequest) gateway.IssueTokenResponse {
	return s.gateway.IssueRunToken(ctx, req)
}

// SubmitRun delegates to the gateway.
func (s *Service) SubmitRun(ctx context.Context, req gateway.SubmitRunRequest) gateway.SubmitRunResponse {
	return s.gateway.SubmitRun(ctx, req)
}

// GetQuest delegates to the gateway.
func (s *Service) GetQuest(ctx context.Context, req gateway.QuestRequest) gateway.QuestResponse {
	return s.gateway.GetQuest(ctx, req)
}

// UpdateQuestProgress delegates to the gateway.
func (s *Service) UpdateQuestProgress(ctx context.Context, req gateway.QuestProgressRequest) gateway.QuestResponse {
	return s.gateway.UpdateQuestProgress(ctx, req)
}

// SaveCalibration delegates to the gateway.
func (s *Service) SaveCalibration(ctx context.Context, req gateway.CalibrationRequest) gateway.Result {
	return s.gateway.SaveCalibration(ctx, req)
}

// GetCalibration delegates to the gateway.
func (s *Service) GetCalibration(ctx context.Context, id gateway.Identity) (calibrate.Profile, gateway.Result) {
	return s.gateway.GetCalibration(ctx, id)
}

// RegisterProfile creates a player profile. Exposed for bootstrap tooling
// and the simulator; the public surface goes through the gateway.
func (s *Service) RegisterProfile(ctx context.Context, username, externalID string) error {
	return s.store.CreateProfile(ctx, repository.Profile{Username: username, ExternalID: externalID})
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backend := "memory"
	if s.postgresDSN != "" {
		backend = "postgres"
	}
	return map[string]interface{}{
		"service":      "mudra",
		"started":      s.started,
		"store":        backend,
		"rateLimit":    s.rateLimit,
		"rateWindow":   s.rateWindow.String(),
		"dailyTarget":  s.dailyTarget,
		"weeklyTarget": s.weeklyTarget,
	}
}
