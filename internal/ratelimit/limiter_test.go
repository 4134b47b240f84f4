package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/store"
)

func testLimiter(t *testing.T, limits map[domain.Platform]Limit, now *time.Time) *Limiter {
	t.Helper()
	s := store.NewMemoryWithClock(func() time.Time { return *now })
	l := NewLimiter(limits, s, zaptest.NewLogger(t))
	l.SetRetryInterval(time.Millisecond)
	return l
}

func TestCheckExhaustsWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{
		domain.PlatformTwitter: {MaxRequests: 3, Window: 15 * time.Minute},
	}, &now)

	for i := 0; i < 3; i++ {
		allowed, err := l.Check(ctx, domain.PlatformTwitter, "tweets")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := l.Check(ctx, domain.PlatformTwitter, "tweets")
	require.NoError(t, err)
	assert.False(t, allowed, "request past the window max should be denied")

	// A different endpoint has its own bucket.
	allowed, err = l.Check(ctx, domain.PlatformTwitter, "users")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{
		domain.PlatformTwitter: {MaxRequests: 1, Window: time.Minute},
	}, &now)

	allowed, err := l.Check(ctx, domain.PlatformTwitter, "tweets")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Check(ctx, domain.PlatformTwitter, "tweets")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(2 * time.Minute)

	allowed, err = l.Check(ctx, domain.PlatformTwitter, "tweets")
	require.NoError(t, err)
	assert.True(t, allowed, "counter should reset to 1 after the window elapses")
}

func TestCheckUnknownPlatform(t *testing.T) {
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{}, &now)

	_, err := l.Check(context.Background(), domain.PlatformTikTok, "videos")
	assert.Error(t, err)
}

func TestDoRetriesRateLimitErrors(t *testing.T) {
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{
		domain.PlatformInstagram: {MaxRequests: 100, Window: time.Hour},
	}, &now)

	attempts := 0
	err := l.Do(context.Background(), domain.PlatformInstagram, "insights", 3, func() error {
		attempts++
		return errors.New("provider said: rate limit exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "a rate-limit error should be attempted exactly maxRetries times")
}

func TestDoPropagatesOtherErrorsImmediately(t *testing.T) {
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{
		domain.PlatformInstagram: {MaxRequests: 100, Window: time.Hour},
	}, &now)

	attempts := 0
	notFound := errors.New("media not found (404)")
	err := l.Do(context.Background(), domain.PlatformInstagram, "insights", 3, func() error {
		attempts++
		return notFound
	})

	require.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, attempts, "non-rate-limit errors must not be retried")
}

func TestDoRecoversWithinRetries(t *testing.T) {
	now := time.Now()
	l := testLimiter(t, map[domain.Platform]Limit{
		domain.PlatformInstagram: {MaxRequests: 100, Window: time.Hour},
	}, &now)

	attempts := 0
	err := l.Do(context.Background(), domain.PlatformInstagram, "insights", 3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("too many requests")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Rate Limit exceeded")))
	assert.True(t, IsRateLimitError(errors.New("too many requests")))
	assert.True(t, IsRateLimitError(errors.New("(#4) Application request limit reached")))
	assert.False(t, IsRateLimitError(errors.New("invalid token")))
	assert.False(t, IsRateLimitError(nil))
}

func TestParseOverrides(t *testing.T) {
	limits, err := ParseOverrides(map[string]string{"instagram": "5/1s"})
	require.NoError(t, err)

	assert.Equal(t, Limit{MaxRequests: 5, Window: time.Second}, limits[domain.PlatformInstagram])
	// Untouched platforms keep their defaults.
	assert.Equal(t, DefaultLimits[domain.PlatformTwitter], limits[domain.PlatformTwitter])

	_, err = ParseOverrides(map[string]string{"myspace": "5/1s"})
	assert.Error(t, err)

	_, err = ParseOverrides(map[string]string{"instagram": "nope"})
	assert.Error(t, err)
}
