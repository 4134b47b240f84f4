package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pulsoria/social-sync/internal/connector"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/repository"
)

type fakeAccounts struct {
	accounts []*domain.SocialAccount
}

func (f *fakeAccounts) Upsert(ctx context.Context, account *domain.SocialAccount) error {
	f.accounts = append(f.accounts, account)
	return nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*domain.SocialAccount, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccounts) ListByTenant(ctx context.Context, tenantID string) ([]*domain.SocialAccount, error) {
	var out []*domain.SocialAccount
	for _, a := range f.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) ListActive(ctx context.Context) ([]*domain.SocialAccount, error) {
	return f.accounts, nil
}

func (f *fakeAccounts) ListExpiringBefore(ctx context.Context, cutoff time.Time, exclude []domain.Platform) ([]*domain.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccounts) UpdateTokens(ctx context.Context, id string, accessTokenEnc, refreshTokenEnc []byte, expiresAt *time.Time) error {
	return nil
}

func (f *fakeAccounts) UpdateAuthStatus(ctx context.Context, id string, status domain.AuthStatus) error {
	return nil
}

type fakeDaily struct {
	mu   sync.Mutex
	rows []domain.DailyMetric
}

func (f *fakeDaily) UpsertBatch(ctx context.Context, metrics []domain.DailyMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, metrics...)
	return nil
}

func (f *fakeDaily) ListByAccount(ctx context.Context, tenantID, socialAccountID string, since time.Time) ([]domain.DailyMetric, error) {
	return f.rows, nil
}

type fakePosts struct {
	mu   sync.Mutex
	rows []domain.PostMetric
}

func (f *fakePosts) UpsertBatch(ctx context.Context, posts []domain.PostMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, posts...)
	return nil
}

func (f *fakePosts) ListByTenant(ctx context.Context, tenantID string, since time.Time) ([]domain.PostMetric, error) {
	return f.rows, nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*domain.SyncRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]*domain.SyncRun)}
}

func (f *fakeRuns) Create(ctx context.Context, run *domain.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = fmt.Sprintf("run-%d", len(f.runs)+1)
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeRuns) Finish(ctx context.Context, id string, status domain.SyncStatus, errText string, dailyCount, postCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	run.Status = status
	run.Error = errText
	run.DailyCount = dailyCount
	run.PostCount = postCount
	run.FinishedAt = &now
	return nil
}

func (f *fakeRuns) ListLatestByTenant(ctx context.Context, tenantID string) ([]domain.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SyncRun
	for _, run := range f.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (f *fakeRuns) byAccount(accountID string) *domain.SyncRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.SocialAccountID == accountID {
			return run
		}
	}
	return nil
}

type staticTokens struct{}

func (staticTokens) ValidAccessToken(ctx context.Context, accountID string) (string, error) {
	return "token-" + accountID, nil
}

type scriptedConnector struct {
	platform domain.Platform
	failFor  string
}

func (c *scriptedConnector) Platform() domain.Platform { return c.platform }

func (c *scriptedConnector) Sync(ctx context.Context, params connector.Params) (*connector.Result, error) {
	if params.SocialAccountID == c.failFor {
		return nil, errors.New("provider exploded mid-sync")
	}
	followers := int64(100)
	return &connector.Result{
		DailyMetrics: []domain.DailyMetric{{
			TenantID:        params.TenantID,
			Platform:        c.platform,
			SocialAccountID: params.SocialAccountID,
			Date:            time.Now().UTC().Truncate(24 * time.Hour),
			Followers:       &followers,
		}},
		Posts: []domain.PostMetric{{
			TenantID:        params.TenantID,
			Platform:        c.platform,
			SocialAccountID: params.SocialAccountID,
			ExternalPostID:  "post-" + params.SocialAccountID,
			Metrics:         map[string]int64{"likes": 1},
		}},
	}, nil
}

func account(id, tenantID string, platform domain.Platform) *domain.SocialAccount {
	return &domain.SocialAccount{
		ID:                id,
		TenantID:          tenantID,
		Platform:          platform,
		ExternalAccountID: "ext-" + id,
		AuthStatus:        domain.AuthStatusActive,
	}
}

func testOrchestrator(t *testing.T, accounts *fakeAccounts, failFor string) (*Orchestrator, *fakeDaily, *fakePosts, *fakeRuns) {
	t.Helper()
	daily := &fakeDaily{}
	posts := &fakePosts{}
	runs := newFakeRuns()
	registry := connector.Registry{
		domain.PlatformInstagram: &scriptedConnector{platform: domain.PlatformInstagram, failFor: failFor},
		domain.PlatformTikTok:    &scriptedConnector{platform: domain.PlatformTikTok, failFor: failFor},
	}
	repos := &repository.Repositories{
		SocialAccount: accounts,
		DailyMetric:   daily,
		PostMetric:    posts,
		SyncRun:       runs,
	}
	return NewOrchestrator(repos, staticTokens{}, registry, zaptest.NewLogger(t), 2), daily, posts, runs
}

func TestRunTenantIsolatesAccountFailure(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*domain.SocialAccount{
		account("acc-1", "tenant-1", domain.PlatformInstagram),
		account("acc-2", "tenant-1", domain.PlatformTikTok),
		account("acc-3", "tenant-1", domain.PlatformInstagram),
	}}
	orch, daily, posts, runs := testOrchestrator(t, accounts, "acc-2")

	summary, err := orch.RunTenant(context.Background(), "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	// Accounts 1 and 3 persisted despite account 2 failing mid-batch.
	assert.Len(t, daily.rows, 2)
	assert.Len(t, posts.rows, 2)
	for _, row := range posts.rows {
		assert.NotEqual(t, "acc-2", row.SocialAccountID)
	}

	failed := runs.byAccount("acc-2")
	require.NotNil(t, failed)
	assert.Equal(t, domain.SyncStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "provider exploded")
	require.NotNil(t, failed.FinishedAt)

	ok := runs.byAccount("acc-1")
	require.NotNil(t, ok)
	assert.Equal(t, domain.SyncStatusSuccess, ok.Status)
	assert.Equal(t, 1, ok.DailyCount)
	assert.Equal(t, 1, ok.PostCount)
}

func TestRunTenantEmpty(t *testing.T) {
	orch, _, _, _ := testOrchestrator(t, &fakeAccounts{}, "")

	summary, err := orch.RunTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestSyncAccountUnknownPlatform(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*domain.SocialAccount{
		account("acc-1", "tenant-1", domain.PlatformLinkedIn),
	}}
	orch, _, _, runs := testOrchestrator(t, accounts, "")

	err := orch.SyncAccount(context.Background(), accounts.accounts[0])
	require.Error(t, err)

	run := runs.byAccount("acc-1")
	require.NotNil(t, run)
	assert.Equal(t, domain.SyncStatusFailed, run.Status)
}
