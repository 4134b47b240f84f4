package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsoria/social-sync/internal/connector"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/repository"
)

// TokenSource resolves a usable access token for an account, refreshing or
// validating as needed.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, error)
}

// BatchSummary totals one orchestrator pass.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Orchestrator drives connectors over a set of accounts. One account's
// failure never aborts the batch; it is recorded on that account's sync run
// and the batch continues.
type Orchestrator struct {
	accounts    repository.SocialAccountRepository
	daily       repository.DailyMetricRepository
	posts       repository.PostMetricRepository
	runs        repository.SyncRunRepository
	tokens      TokenSource
	registry    connector.Registry
	logger      *zap.Logger
	concurrency int
}

// NewOrchestrator creates an Orchestrator. concurrency bounds how many
// accounts sync at once.
func NewOrchestrator(
	repos *repository.Repositories,
	tokens TokenSource,
	registry connector.Registry,
	logger *zap.Logger,
	concurrency int,
) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		accounts:    repos.SocialAccount,
		daily:       repos.DailyMetric,
		posts:       repos.PostMetric,
		runs:        repos.SyncRun,
		tokens:      tokens,
		registry:    registry,
		logger:      logger,
		concurrency: concurrency,
	}
}

// RunTenant syncs every account belonging to one tenant.
func (o *Orchestrator) RunTenant(ctx context.Context, tenantID string) (*BatchSummary, error) {
	accounts, err := o.accounts.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for tenant %s: %w", tenantID, err)
	}
	return o.runBatch(ctx, accounts), nil
}

// RunAll syncs every active account across tenants. Used by the scheduler.
func (o *Orchestrator) RunAll(ctx context.Context) (*BatchSummary, error) {
	accounts, err := o.accounts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return o.runBatch(ctx, accounts), nil
}

func (o *Orchestrator) runBatch(ctx context.Context, accounts []*domain.SocialAccount) *BatchSummary {
	summary := &BatchSummary{Total: len(accounts)}
	results := make([]error, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			results[i] = o.SyncAccount(gctx, account)
			// Failures are isolated per account, never propagated to
			// the group.
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range results {
		if err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	o.logger.Info("sync batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

// SyncAccount syncs one account and records the attempt as a sync run.
func (o *Orchestrator) SyncAccount(ctx context.Context, account *domain.SocialAccount) error {
	run := &domain.SyncRun{
		TenantID:        account.TenantID,
		SocialAccountID: account.ID,
		Platform:        account.Platform,
		Status:          domain.SyncStatusRunning,
		StartedAt:       time.Now(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	result, err := o.syncOnce(ctx, account)
	if err != nil {
		o.logger.Warn("account sync failed",
			zap.String("tenant_id", account.TenantID),
			zap.String("account_id", account.ID),
			zap.String("platform", string(account.Platform)),
			zap.Error(err),
		)
		if finishErr := o.runs.Finish(ctx, run.ID, domain.SyncStatusFailed, err.Error(), 0, 0); finishErr != nil {
			o.logger.Error("failed to record sync failure", zap.String("run_id", run.ID), zap.Error(finishErr))
		}
		return err
	}

	if err := o.runs.Finish(ctx, run.ID, domain.SyncStatusSuccess, "", len(result.DailyMetrics), len(result.Posts)); err != nil {
		o.logger.Error("failed to record sync success", zap.String("run_id", run.ID), zap.Error(err))
	}

	o.logger.Info("account synced",
		zap.String("tenant_id", account.TenantID),
		zap.String("account_id", account.ID),
		zap.String("platform", string(account.Platform)),
		zap.Int("daily_metrics", len(result.DailyMetrics)),
		zap.Int("posts", len(result.Posts)),
	)
	return nil
}

func (o *Orchestrator) syncOnce(ctx context.Context, account *domain.SocialAccount) (*connector.Result, error) {
	conn, err := o.registry.For(account.Platform)
	if err != nil {
		return nil, err
	}

	accessToken, err := o.tokens.ValidAccessToken(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access token: %w", err)
	}

	result, err := conn.Sync(ctx, connector.Params{
		TenantID:          account.TenantID,
		SocialAccountID:   account.ID,
		ExternalAccountID: account.ExternalAccountID,
		AccessToken:       accessToken,
	})
	if err != nil {
		return nil, err
	}

	if len(result.DailyMetrics) > 0 {
		if err := o.daily.UpsertBatch(ctx, result.DailyMetrics); err != nil {
			return nil, fmt.Errorf("failed to persist daily metrics: %w", err)
		}
	}
	if len(result.Posts) > 0 {
		if err := o.posts.UpsertBatch(ctx, result.Posts); err != nil {
			return nil, fmt.Errorf("failed to persist post metrics: %w", err)
		}
	}

	return result, nil
}
