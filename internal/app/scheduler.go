package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/config"
	"github.com/pulsoria/social-sync/internal/syncer"
	"github.com/pulsoria/social-sync/internal/tokenvault"
	"github.com/pulsoria/social-sync/pkg/observability"
)

// Scheduler runs periodic sync batches and token refresh sweeps until its
// context is cancelled. A zero interval disables the corresponding loop.
type Scheduler struct {
	orchestrator *syncer.Orchestrator
	vault        *tokenvault.Vault
	metrics      *observability.SyncMetrics
	logger       *zap.Logger
	cfg          config.SyncConfig

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(
	orchestrator *syncer.Orchestrator,
	vault *tokenvault.Vault,
	metrics *observability.SyncMetrics,
	logger *zap.Logger,
	cfg config.SyncConfig,
) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		vault:        vault,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// Start launches the background loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Interval.Duration > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.cfg.Interval.Duration, s.runSyncBatch)
	}
	if s.cfg.RefreshSweepInterval.Duration > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.cfg.RefreshSweepInterval.Duration, s.runRefreshSweep)
	}
}

// Wait blocks until every loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Scheduler) runSyncBatch(ctx context.Context) {
	s.logger.Info("scheduled sync batch starting")

	summary, err := s.orchestrator.RunAll(ctx)
	if err != nil {
		s.logger.Error("scheduled sync batch failed to start", zap.Error(err))
		return
	}

	s.metrics.RecordBatch(ctx, summary.Succeeded, summary.Failed)
}

func (s *Scheduler) runRefreshSweep(ctx context.Context) {
	s.logger.Info("token refresh sweep starting")

	summary, err := s.vault.RefreshAllExpiringTokens(ctx)
	if err != nil {
		s.logger.Error("token refresh sweep failed", zap.Error(err))
		return
	}

	s.metrics.RecordRefreshSweep(ctx, summary.Refreshed, summary.Failed)
	s.logger.Info("token refresh sweep finished",
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("failed", summary.Failed),
	)
}
