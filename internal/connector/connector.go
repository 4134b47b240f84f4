package connector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

// Params identifies the account being synced. AccessToken is already resolved
// and valid; refresh handling stays with the token vault.
type Params struct {
	TenantID          string
	SocialAccountID   string
	ExternalAccountID string
	AccessToken       string
}

// Result is one sync's canonical output. Dates in DailyMetrics are unique;
// ExternalPostIDs are stable across repeated syncs.
type Result struct {
	DailyMetrics []domain.DailyMetric
	Posts        []domain.PostMetric
}

// Connector syncs one provider's data into canonical records. Sync never
// fails for per-item issues; it returns an error only for account-level
// preconditions or total API failure.
type Connector interface {
	Platform() domain.Platform
	Sync(ctx context.Context, params Params) (*Result, error)
}

// Options carries the shared collaborators and tuning for all connectors.
type Options struct {
	Executor *apiclient.Executor
	Logger   *zap.Logger
	// MaxPages caps pagination per listing endpoint.
	MaxPages int
	// InsightConcurrency caps concurrent per-post insight calls.
	InsightConcurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = 10
	}
	if o.InsightConcurrency <= 0 {
		o.InsightConcurrency = 8
	}
	return o
}

// Registry holds one connector per platform.
type Registry map[domain.Platform]Connector

// NewRegistry builds the full connector set.
func NewRegistry(opts Options) Registry {
	opts = opts.withDefaults()
	return Registry{
		domain.PlatformInstagram: NewInstagram(opts),
		domain.PlatformFacebook:  NewFacebook(opts),
		domain.PlatformTikTok:    NewTikTok(opts),
		domain.PlatformYouTube:   NewYouTube(opts),
		domain.PlatformTwitter:   NewTwitter(opts),
		domain.PlatformLinkedIn:  NewLinkedIn(opts),
	}
}

// For returns the connector for a platform.
func (r Registry) For(platform domain.Platform) (Connector, error) {
	c, ok := r[platform]
	if !ok {
		return nil, fmt.Errorf("no connector registered for platform %s", platform)
	}
	return c, nil
}

// base is the machinery shared by all connector variants.
type base struct {
	opts Options

	// negotiated caches the winning variant index per negotiation key for
	// the remainder of the run, so a metric set is probed once, not per
	// call.
	negMu      sync.Mutex
	negotiated map[string]int
}

func newBase(opts Options) base {
	return base{
		opts:       opts,
		negotiated: make(map[string]int),
	}
}

// negotiate tries variants in order until try accepts one, remembering the
// winner for subsequent calls with the same key. Probe rejections are
// expected; only the final variant failing is an error.
func (b *base) negotiate(ctx context.Context, key string, variants []string, try func(ctx context.Context, variant string, probing bool) error) (string, error) {
	b.negMu.Lock()
	start, known := b.negotiated[key]
	b.negMu.Unlock()

	if known {
		variant := variants[start]
		if err := try(ctx, variant, false); err != nil {
			return "", err
		}
		return variant, nil
	}

	var lastErr error
	for i, variant := range variants {
		probing := i < len(variants)-1
		err := try(ctx, variant, probing)
		if err == nil {
			b.negMu.Lock()
			b.negotiated[key] = i
			b.negMu.Unlock()
			if i > 0 {
				b.opts.Logger.Info("negotiated fallback variant",
					zap.String("key", key),
					zap.String("variant", variant),
				)
			}
			return variant, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("no accepted variant for %s: %w", key, lastErr)
}

// forEachPost runs fn over posts with bounded concurrency, isolating per-item
// failures: a failed item keeps zero-valued metrics and is logged, never
// dropped.
func (b *base) forEachPost(ctx context.Context, platform domain.Platform, posts []domain.PostMetric, fn func(ctx context.Context, post *domain.PostMetric) error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.InsightConcurrency)

	for i := range posts {
		post := &posts[i]
		g.Go(func() error {
			if err := fn(ctx, post); err != nil {
				b.opts.Logger.Warn("post insight fetch failed, keeping post with zero metrics",
					zap.String("platform", string(platform)),
					zap.String("post_id", post.ExternalPostID),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	// Workers never return errors, so this cannot fail.
	_ = g.Wait()
}

// dedupeDaily collapses duplicate dates, merging later entries into earlier
// ones, and returns the metrics sorted by date. Guarantees the unique-date
// contract regardless of provider pagination quirks.
func dedupeDaily(metrics []domain.DailyMetric) []domain.DailyMetric {
	byDate := make(map[string]int, len(metrics))
	out := make([]domain.DailyMetric, 0, len(metrics))

	for _, m := range metrics {
		key := m.Date.Format("2006-01-02")
		if idx, ok := byDate[key]; ok {
			out[idx] = mergeDaily(out[idx], m)
			continue
		}
		byDate[key] = len(out)
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func mergeDaily(dst, src domain.DailyMetric) domain.DailyMetric {
	pick := func(a, b *int64) *int64 {
		if b != nil {
			return b
		}
		return a
	}
	dst.Followers = pick(dst.Followers, src.Followers)
	dst.Impressions = pick(dst.Impressions, src.Impressions)
	dst.Reach = pick(dst.Reach, src.Reach)
	dst.Engagements = pick(dst.Engagements, src.Engagements)
	dst.Likes = pick(dst.Likes, src.Likes)
	dst.Comments = pick(dst.Comments, src.Comments)
	dst.Shares = pick(dst.Shares, src.Shares)
	dst.Saves = pick(dst.Saves, src.Saves)
	dst.Views = pick(dst.Views, src.Views)
	dst.WatchTimeSec = pick(dst.WatchTimeSec, src.WatchTimeSec)
	dst.PostsCount = pick(dst.PostsCount, src.PostsCount)
	return dst
}

func int64Ptr(v int64) *int64 { return &v }

// day truncates t to its UTC date.
func day(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

// parseCount parses a string-typed counter, zero on malformed input. Some
// providers serialize large counters as JSON strings.
func parseCount(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
