package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/store"
)

// resetBuffer is added on top of a window's reset time before retrying, so a
// provider with a slightly skewed clock does not reject the first request of
// the next window.
const resetBuffer = 100 * time.Millisecond

const defaultMaxRetries = 3

// rateLimitPatterns are substrings that identify provider rate-limit errors
// regardless of which error shape they arrived in.
var rateLimitPatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota exceeded",
	"(#4)",  // Meta application request limit
	"(#17)", // Meta user request limit
}

// IsRateLimitError reports whether err looks like a provider rate-limit
// rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Limiter enforces per-platform fixed request windows keyed by
// platform+endpoint, with counters held in a Store so multiple instances can
// share them.
type Limiter struct {
	limits map[domain.Platform]Limit
	store  store.Store
	logger *zap.Logger

	// retryInterval is the first backoff step (doubled per retry).
	// Overridable in tests.
	retryInterval time.Duration

	mu       sync.Mutex
	resetAts map[string]time.Time
}

// NewLimiter creates a limiter over the given table. A nil table uses
// DefaultLimits.
func NewLimiter(limits map[domain.Platform]Limit, s store.Store, logger *zap.Logger) *Limiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &Limiter{
		limits:        limits,
		store:         s,
		logger:        logger,
		retryInterval: time.Second,
		resetAts:      make(map[string]time.Time),
	}
}

// SetRetryInterval overrides the first backoff step. Intended for tests.
func (l *Limiter) SetRetryInterval(d time.Duration) {
	l.retryInterval = d
}

func bucketKey(platform domain.Platform, endpoint string) string {
	return fmt.Sprintf("%s:%s", platform, endpoint)
}

// Check increments the window counter for platform+endpoint and reports
// whether the request is allowed. The increment is atomic, so concurrent
// callers can never drive the admitted count past the maximum.
func (l *Limiter) Check(ctx context.Context, platform domain.Platform, endpoint string) (bool, error) {
	limit, ok := l.limits[platform]
	if !ok {
		return false, fmt.Errorf("no rate limit configured for platform %s", platform)
	}

	key := bucketKey(platform, endpoint)
	count, resetAt, err := l.store.Incr(ctx, key, limit.Window)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit bucket: %w", err)
	}

	l.mu.Lock()
	l.resetAts[key] = resetAt
	l.mu.Unlock()

	if count > limit.MaxRequests {
		l.logger.Warn("rate limit window exhausted",
			zap.String("platform", string(platform)),
			zap.String("endpoint", endpoint),
			zap.Int64("count", count),
			zap.Int64("max", limit.MaxRequests),
			zap.Time("reset_at", resetAt),
		)
		return false, nil
	}

	return true, nil
}

// WaitForReset blocks until the current window for platform+endpoint has
// elapsed (plus a small buffer), or until ctx is cancelled. Only meaningful
// after a failed Check.
func (l *Limiter) WaitForReset(ctx context.Context, platform domain.Platform, endpoint string) error {
	l.mu.Lock()
	resetAt, ok := l.resetAts[bucketKey(platform, endpoint)]
	l.mu.Unlock()

	if !ok {
		return nil
	}

	wait := time.Until(resetAt) + resetBuffer
	if wait <= 0 {
		return nil
	}

	l.logger.Info("waiting for rate limit window reset",
		zap.String("platform", string(platform)),
		zap.String("endpoint", endpoint),
		zap.Duration("wait", wait),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn under the platform's rate limit. A failed pre-check waits for the
// window to reset; errors matching a rate-limit pattern are retried with
// exponential backoff (1s, 2s, 4s, ...) for at most maxRetries total attempts
// (3 if non-positive), everything else is returned immediately.
func (l *Limiter) Do(ctx context.Context, platform domain.Platform, endpoint string, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	attempt := func() error {
		allowed, err := l.Check(ctx, platform, endpoint)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !allowed {
			if err := l.WaitForReset(ctx, platform, endpoint); err != nil {
				return backoff.Permanent(err)
			}
			if _, err := l.Check(ctx, platform, endpoint); err != nil {
				return backoff.Permanent(err)
			}
		}

		if err := fn(); err != nil {
			if IsRateLimitError(err) {
				l.logger.Warn("provider rate limit hit, backing off",
					zap.String("platform", string(platform)),
					zap.String("endpoint", endpoint),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = l.retryInterval * 8
	policy.MaxElapsedTime = 0

	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries-1)), ctx))
}
