package domain

import "time"

// DailyMetric is the canonical per-day account metric row. All counters are
// optional because no provider exposes the full set; absent values stay nil so
// upserts do not clobber previously synced columns with zeros.
type DailyMetric struct {
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	Platform        Platform  `json:"platform" db:"platform"`
	SocialAccountID string    `json:"social_account_id" db:"social_account_id"`
	Date            time.Time `json:"date" db:"date"`
	Followers       *int64    `json:"followers" db:"followers"`
	Impressions     *int64    `json:"impressions" db:"impressions"`
	Reach           *int64    `json:"reach" db:"reach"`
	Engagements     *int64    `json:"engagements" db:"engagements"`
	Likes           *int64    `json:"likes" db:"likes"`
	Comments        *int64    `json:"comments" db:"comments"`
	Shares          *int64    `json:"shares" db:"shares"`
	Saves           *int64    `json:"saves" db:"saves"`
	Views           *int64    `json:"views" db:"views"`
	WatchTimeSec    *int64    `json:"watch_time_sec" db:"watch_time_sec"`
	PostsCount      *int64    `json:"posts_count" db:"posts_count"`
}

// PostMetric is the canonical per-post row. ExternalPostID must be stable
// across repeated syncs of the same content so upserts converge.
type PostMetric struct {
	TenantID        string           `json:"tenant_id" db:"tenant_id"`
	Platform        Platform         `json:"platform" db:"platform"`
	SocialAccountID string           `json:"social_account_id" db:"social_account_id"`
	ExternalPostID  string           `json:"external_post_id" db:"external_post_id"`
	PostedAt        time.Time        `json:"posted_at" db:"posted_at"`
	Caption         string           `json:"caption" db:"caption"`
	MediaType       string           `json:"media_type" db:"media_type"`
	URL             string           `json:"url" db:"url"`
	ThumbnailURL    string           `json:"thumbnail_url" db:"thumbnail_url"`
	Metrics         map[string]int64 `json:"metrics" db:"metrics"`
}

// Metric returns the named counter, zero when absent.
func (p PostMetric) Metric(name string) int64 {
	if p.Metrics == nil {
		return 0
	}
	return p.Metrics[name]
}

// Engagements sums the interaction counters present on the post.
func (p PostMetric) Engagements() int64 {
	return p.Metric("likes") + p.Metric("comments") + p.Metric("shares") + p.Metric("saves")
}

// Visibility returns the best available "how many people saw this" counter,
// preferring impressions, then views, then reach.
func (p PostMetric) Visibility() int64 {
	for _, name := range []string{"impressions", "views", "reach"} {
		if v := p.Metric(name); v > 0 {
			return v
		}
	}
	return 0
}
