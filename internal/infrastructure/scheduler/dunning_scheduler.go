package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DunningRunner starts a dunning run for one tenant.
type DunningRunner interface {
	RunForTenant(ctx context.Context, tenantID uuid.UUID, minDaysOverdue int, minOpenAmount decimal.Decimal) error
}

// TenantProvider lists the tenants a scheduled run covers.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// DunningSchedulerConfig holds configuration for the daily dunning trigger.
type DunningSchedulerConfig struct {
	// RunHour and RunMinute define the daily run time in 24h local time.
	RunHour   int
	RunMinute int

	// CheckInterval is how often the loop checks whether it is time to run.
	CheckInterval time.Duration

	// JobTimeout bounds one full run across all tenants.
	JobTimeout time.Duration

	// MinDaysOverdue and MinOpenAmount are the selection thresholds passed
	// to each run.
	MinDaysOverdue int
	MinOpenAmount  decimal.Decimal
}

// DefaultDunningSchedulerConfig returns a 6am daily schedule.
func DefaultDunningSchedulerConfig() DunningSchedulerConfig {
	return DunningSchedulerConfig{
		RunHour:        6,
		RunMinute:      0,
		CheckInterval:  time.Minute,
		JobTimeout:     30 * time.Minute,
		MinDaysOverdue: 7,
		MinOpenAmount:  decimal.NewFromInt(5),
	}
}

// DunningScheduler triggers one dunning run per tenant per day. Runs are
// idempotent on the service side, so a restart on the run day at most
// re-selects invoices that were already dunned and skips them.
type DunningScheduler struct {
	config         DunningSchedulerConfig
	runner         DunningRunner
	tenantProvider TenantProvider
	logger         *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewDunningScheduler creates a new dunning scheduler
func NewDunningScheduler(
	config DunningSchedulerConfig,
	runner DunningRunner,
	tenantProvider TenantProvider,
	logger *zap.Logger,
) *DunningScheduler {
	return &DunningScheduler{
		config:         config,
		runner:         runner,
		tenantProvider: tenantProvider,
		logger:         logger,
	}
}

// Start starts the scheduler loop
func (s *DunningScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("dunning scheduler started",
		zap.Int("run_hour", s.config.RunHour),
		zap.Int("run_minute", s.config.RunMinute),
		zap.Duration("check_interval", s.config.CheckInterval),
	)

	return nil
}

// Stop stops the scheduler loop
func (s *DunningScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("dunning scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DunningScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndTrigger(ctx)
		}
	}
}

func (s *DunningScheduler) checkAndTrigger(ctx context.Context) {
	now := time.Now()
	currentDate := now.Format("2006-01-02")

	s.mu.Lock()
	alreadyRan := s.lastRunDate == currentDate
	s.mu.Unlock()
	if alreadyRan {
		return
	}

	if now.Hour() != s.config.RunHour || now.Minute() != s.config.RunMinute {
		return
	}

	s.mu.Lock()
	s.lastRunDate = currentDate
	s.mu.Unlock()

	s.logger.Info("triggering daily dunning runs")
	s.TriggerRuns(ctx)
}

// TriggerRuns starts a dunning run for every active tenant. A failing tenant
// does not stop the others.
func (s *DunningScheduler) TriggerRuns(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	tenantIDs, err := s.tenantProvider.GetActiveTenantIDs(runCtx)
	if err != nil {
		s.logger.Error("failed to list tenants for dunning runs", zap.Error(err))
		return
	}

	s.logger.Info("starting dunning runs", zap.Int("tenant_count", len(tenantIDs)))

	for _, tenantID := range tenantIDs {
		if runCtx.Err() != nil {
			s.logger.Warn("dunning runs aborted", zap.Error(runCtx.Err()))
			return
		}
		if err := s.runner.RunForTenant(runCtx, tenantID, s.config.MinDaysOverdue, s.config.MinOpenAmount); err != nil {
			s.logger.Error("dunning run failed for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}
}
