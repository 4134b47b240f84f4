package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

const (
	defaultLinkedInBaseURL = "https://api.linkedin.com/rest"
	linkedInVersion        = "202405"
	linkedInPageSize       = 50
)

// LinkedIn syncs an organization page via the Community Management API.
// ExternalAccountID is the numeric organization ID.
type LinkedIn struct {
	base
	baseURL string
}

// NewLinkedIn creates the LinkedIn connector.
func NewLinkedIn(opts Options) *LinkedIn {
	return &LinkedIn{base: newBase(opts), baseURL: defaultLinkedInBaseURL}
}

// SetBaseURL overrides the API base URL. Intended for tests.
func (c *LinkedIn) SetBaseURL(u string) { c.baseURL = u }

func (c *LinkedIn) Platform() domain.Platform { return domain.PlatformLinkedIn }

func liHeaders() http.Header {
	h := http.Header{}
	h.Set("LinkedIn-Version", linkedInVersion)
	h.Set("X-Restli-Protocol-Version", "2.0.0")
	return h
}

type liShareStatsResponse struct {
	Elements []struct {
		TimeRange struct {
			Start int64 `json:"start"`
			End   int64 `json:"end"`
		} `json:"timeRange"`
		TotalShareStatistics struct {
			ImpressionCount        int64   `json:"impressionCount"`
			UniqueImpressionsCount int64   `json:"uniqueImpressionsCount"`
			ClickCount             int64   `json:"clickCount"`
			LikeCount              int64   `json:"likeCount"`
			CommentCount           int64   `json:"commentCount"`
			ShareCount             int64   `json:"shareCount"`
			EngagementRate         float64 `json:"engagement"`
		} `json:"totalShareStatistics"`
	} `json:"elements"`
}

type liFollowerStatsResponse struct {
	Elements []struct {
		FollowerGains struct {
			OrganicFollowerGain int64 `json:"organicFollowerGain"`
			PaidFollowerGain    int64 `json:"paidFollowerGain"`
		} `json:"followerGains"`
		TimeRange struct {
			Start int64 `json:"start"`
		} `json:"timeRange"`
	} `json:"elements"`
}

type liPostsResponse struct {
	Elements []struct {
		ID          string `json:"id"`
		Commentary  string `json:"commentary"`
		PublishedAt int64  `json:"publishedAt"`
		Content     struct {
			Media struct {
				ID string `json:"id"`
			} `json:"media"`
		} `json:"content"`
	} `json:"elements"`
	Paging struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Total int `json:"total"`
	} `json:"paging"`
}

type liSocialActionsResponse struct {
	LikesSummary struct {
		TotalLikes int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		TotalComments int64 `json:"totalFirstLevelComments"`
	} `json:"commentsSummary"`
}

func (c *LinkedIn) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("linkedin sync requires an access token")
	}

	orgURN := "urn:li:organization:" + params.ExternalAccountID
	result := &Result{}

	daily, err := c.fetchDailyStatistics(ctx, params, orgURN)
	if err != nil {
		c.opts.Logger.Warn("linkedin share statistics unavailable, continuing with partial data",
			zap.String("organization", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		result.DailyMetrics = daily
	}

	posts, err := c.fetchPosts(ctx, params, orgURN)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch linkedin posts: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *LinkedIn) fetchDailyStatistics(ctx context.Context, params Params, orgURN string) ([]domain.DailyMetric, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)
	timeIntervals := fmt.Sprintf("(timeRange:(start:%d,end:%d),timeGranularityType:DAY)",
		start.UnixMilli(), end.UnixMilli())

	var shares liShareStatsResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformLinkedIn, "organizationalEntityShareStatistics", apiclient.Request{
		URL: c.baseURL + "/organizationalEntityShareStatistics",
		Query: url.Values{
			"q":                    {"organizationalEntity"},
			"organizationalEntity": {orgURN},
			"timeIntervals":        {timeIntervals},
		},
		Header:      liHeaders(),
		AccessToken: params.AccessToken,
	}, &shares)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]*domain.DailyMetric)
	metricFor := func(ms int64) *domain.DailyMetric {
		date := day(time.UnixMilli(ms))
		if m, ok := byDate[date]; ok {
			return m
		}
		m := &domain.DailyMetric{
			TenantID:        params.TenantID,
			Platform:        domain.PlatformLinkedIn,
			SocialAccountID: params.SocialAccountID,
			Date:            date,
		}
		byDate[date] = m
		return m
	}

	for _, el := range shares.Elements {
		m := metricFor(el.TimeRange.Start)
		s := el.TotalShareStatistics
		m.Impressions = int64Ptr(s.ImpressionCount)
		m.Reach = int64Ptr(s.UniqueImpressionsCount)
		m.Likes = int64Ptr(s.LikeCount)
		m.Comments = int64Ptr(s.CommentCount)
		m.Shares = int64Ptr(s.ShareCount)
		m.Engagements = int64Ptr(s.LikeCount + s.CommentCount + s.ShareCount + s.ClickCount)
	}

	// Follower gains are a separate query; failure here still keeps the
	// share series.
	var followers liFollowerStatsResponse
	err = c.opts.Executor.Do(ctx, domain.PlatformLinkedIn, "organizationalEntityFollowerStatistics", apiclient.Request{
		URL: c.baseURL + "/organizationalEntityFollowerStatistics",
		Query: url.Values{
			"q":                    {"organizationalEntity"},
			"organizationalEntity": {orgURN},
			"timeIntervals":        {timeIntervals},
		},
		Header:      liHeaders(),
		AccessToken: params.AccessToken,
		Expect:      apiclient.ExpectFailure,
	}, &followers)
	if err != nil {
		c.opts.Logger.Debug("linkedin follower statistics unavailable",
			zap.String("organization", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		for _, el := range followers.Elements {
			m := metricFor(el.TimeRange.Start)
			gain := el.FollowerGains.OrganicFollowerGain + el.FollowerGains.PaidFollowerGain
			m.Followers = int64Ptr(gain)
		}
	}

	metrics := make([]domain.DailyMetric, 0, len(byDate))
	for _, m := range byDate {
		metrics = append(metrics, *m)
	}
	return metrics, nil
}

func (c *LinkedIn) fetchPosts(ctx context.Context, params Params, orgURN string) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	for page := 0; page < c.opts.MaxPages; page++ {
		var parsed liPostsResponse
		err := c.opts.Executor.Do(ctx, domain.PlatformLinkedIn, "posts", apiclient.Request{
			URL: c.baseURL + "/posts",
			Query: url.Values{
				"q":      {"author"},
				"author": {orgURN},
				"start":  {strconv.Itoa(page * linkedInPageSize)},
				"count":  {strconv.Itoa(linkedInPageSize)},
			},
			Header:      liHeaders(),
			AccessToken: params.AccessToken,
		}, &parsed)
		if err != nil {
			return nil, err
		}

		for _, el := range parsed.Elements {
			mediaType := "text"
			if el.Content.Media.ID != "" {
				mediaType = "media"
			}
			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformLinkedIn,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  el.ID,
				PostedAt:        time.UnixMilli(el.PublishedAt).UTC(),
				Caption:         el.Commentary,
				MediaType:       mediaType,
				URL:             "https://www.linkedin.com/feed/update/" + el.ID,
				Metrics:         map[string]int64{},
			})
		}

		if len(parsed.Elements) < linkedInPageSize {
			break
		}
	}

	c.forEachPost(ctx, domain.PlatformLinkedIn, posts, func(ctx context.Context, post *domain.PostMetric) error {
		return c.fetchSocialActions(ctx, params, post)
	})

	return posts, nil
}

func (c *LinkedIn) fetchSocialActions(ctx context.Context, params Params, post *domain.PostMetric) error {
	var parsed liSocialActionsResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformLinkedIn, "socialActions", apiclient.Request{
		URL:         c.baseURL + "/socialActions/" + url.PathEscape(post.ExternalPostID),
		Header:      liHeaders(),
		AccessToken: params.AccessToken,
	}, &parsed)
	if err != nil {
		return err
	}

	post.Metrics["likes"] = parsed.LikesSummary.TotalLikes
	post.Metrics["comments"] = parsed.CommentsSummary.TotalComments
	return nil
}
