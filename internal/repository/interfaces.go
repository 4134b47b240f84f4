package repository

import (
	"context"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
)

// SocialAccountRepository defines methods for connected-account rows. Token
// columns hold ciphertext; encryption happens in the token vault.
type SocialAccountRepository interface {
	// Upsert inserts the account or, when the (tenant, platform, external
	// account) connection already exists, replaces its tokens and status.
	Upsert(ctx context.Context, account *domain.SocialAccount) error
	GetByID(ctx context.Context, id string) (*domain.SocialAccount, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.SocialAccount, error)
	// ListActive returns every account eligible for a scheduled sync.
	ListActive(ctx context.Context) ([]*domain.SocialAccount, error)
	// ListExpiringBefore returns active accounts whose tokens expire
	// before the cutoff, excluding the given platforms.
	ListExpiringBefore(ctx context.Context, cutoff time.Time, exclude []domain.Platform) ([]*domain.SocialAccount, error)
	// UpdateTokens replaces the token ciphertext and expiry in one
	// statement so a refreshed token is never stored without its expiry.
	UpdateTokens(ctx context.Context, id string, accessTokenEnc, refreshTokenEnc []byte, expiresAt *time.Time) error
	UpdateAuthStatus(ctx context.Context, id string, status domain.AuthStatus) error
}

// DailyMetricRepository upserts canonical daily metrics keyed by (tenant,
// platform, account, date).
type DailyMetricRepository interface {
	UpsertBatch(ctx context.Context, metrics []domain.DailyMetric) error
	ListByAccount(ctx context.Context, tenantID, socialAccountID string, since time.Time) ([]domain.DailyMetric, error)
}

// PostMetricRepository upserts canonical post metrics keyed by (tenant,
// platform, external post id).
type PostMetricRepository interface {
	UpsertBatch(ctx context.Context, posts []domain.PostMetric) error
	ListByTenant(ctx context.Context, tenantID string, since time.Time) ([]domain.PostMetric, error)
}

// SyncRunRepository records per-account sync attempts.
type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Finish(ctx context.Context, id string, status domain.SyncStatus, errText string, dailyCount, postCount int) error
	// ListLatestByTenant returns each account's most recent run.
	ListLatestByTenant(ctx context.Context, tenantID string) ([]domain.SyncRun, error)
}
