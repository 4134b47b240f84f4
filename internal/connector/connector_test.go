package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/ratelimit"
	"github.com/pulsoria/social-sync/internal/store"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	logger := zaptest.NewLogger(t)
	limiter := ratelimit.NewLimiter(nil, store.NewMemory(), logger)
	return Options{
		Executor:           apiclient.NewExecutor(limiter, logger, 5*time.Second),
		Logger:             logger,
		MaxPages:           5,
		InsightConcurrency: 2,
	}
}

func testParams() Params {
	return Params{
		TenantID:          "tenant-1",
		SocialAccountID:   "acct-uuid-1",
		ExternalAccountID: "ext-1",
		AccessToken:       "token-1",
	}
}

func TestDedupeDailyMergesDuplicateDates(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	later := date.AddDate(0, 0, 1)

	merged := dedupeDaily([]domain.DailyMetric{
		{Date: later, Views: int64Ptr(50)},
		{Date: date, Impressions: int64Ptr(100)},
		{Date: date, Reach: int64Ptr(80), Impressions: int64Ptr(120)},
	})

	assert.Len(t, merged, 2)
	assert.Equal(t, date, merged[0].Date)
	assert.Equal(t, int64(120), *merged[0].Impressions)
	assert.Equal(t, int64(80), *merged[0].Reach)
	assert.Equal(t, later, merged[1].Date)
	assert.Equal(t, int64(50), *merged[1].Views)
}

func TestRegistryCoversAllPlatforms(t *testing.T) {
	registry := NewRegistry(testOptions(t))

	for _, platform := range domain.Platforms {
		conn, err := registry.For(platform)
		assert.NoError(t, err)
		assert.Equal(t, platform, conn.Platform())
	}

	_, err := registry.For(domain.Platform("myspace"))
	assert.Error(t, err)
}
