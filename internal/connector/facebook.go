package connector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

// fbDailyMetricVariants: page_impressions dropped page_engaged_users in newer
// API versions; the shortest set is accepted everywhere.
var fbDailyMetricVariants = []string{
	"page_impressions,page_impressions_unique,page_engaged_users,page_fan_adds",
	"page_impressions,page_impressions_unique,page_fan_adds",
	"page_impressions,page_fan_adds",
}

// Facebook syncs a Facebook page via the Meta Graph API.
type Facebook struct {
	base
	baseURL string
}

// NewFacebook creates the Facebook connector.
func NewFacebook(opts Options) *Facebook {
	return &Facebook{base: newBase(opts), baseURL: defaultGraphBaseURL}
}

// SetBaseURL overrides the Graph API base URL. Intended for tests.
func (c *Facebook) SetBaseURL(u string) { c.baseURL = u }

func (c *Facebook) Platform() domain.Platform { return domain.PlatformFacebook }

type fbPostsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
		Permalink   string `json:"permalink_url"`
		FullPicture string `json:"full_picture"`
		Shares      struct {
			Count int64 `json:"count"`
		} `json:"shares"`
		Reactions struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"reactions"`
		Comments struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (c *Facebook) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("facebook sync requires a page access token")
	}

	result := &Result{}

	daily, err := c.fetchDailyMetrics(ctx, params)
	if err != nil {
		c.opts.Logger.Warn("facebook page insights unavailable, continuing with partial data",
			zap.String("page", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		result.DailyMetrics = daily
	}

	posts, err := c.fetchPosts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch facebook posts: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *Facebook) fetchDailyMetrics(ctx context.Context, params Params) ([]domain.DailyMetric, error) {
	since := time.Now().AddDate(0, 0, -30)

	var parsed igInsightsResponse // same series shape as Instagram insights
	_, err := c.negotiate(ctx, "facebook/insights", fbDailyMetricVariants,
		func(ctx context.Context, metrics string, probing bool) error {
			expect := apiclient.Unexpected
			if probing {
				expect = apiclient.ExpectFailure
			}
			parsed = igInsightsResponse{}
			return c.opts.Executor.Do(ctx, domain.PlatformFacebook, "insights", apiclient.Request{
				URL: fmt.Sprintf("%s/%s/insights", c.baseURL, params.ExternalAccountID),
				Query: url.Values{
					"metric":       {metrics},
					"period":       {"day"},
					"since":        {strconv.FormatInt(since.Unix(), 10)},
					"until":        {strconv.FormatInt(time.Now().Unix(), 10)},
					"access_token": {params.AccessToken},
				},
				Expect: expect,
			}, &parsed)
		})
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]*domain.DailyMetric)
	for _, series := range parsed.Data {
		for _, point := range series.Values {
			ts, err := time.Parse(time.RFC3339, point.EndTime)
			if err != nil {
				continue
			}
			date := day(ts)
			m, ok := byDate[date]
			if !ok {
				m = &domain.DailyMetric{
					TenantID:        params.TenantID,
					Platform:        domain.PlatformFacebook,
					SocialAccountID: params.SocialAccountID,
					Date:            date,
				}
				byDate[date] = m
			}
			switch series.Name {
			case "page_impressions":
				m.Impressions = int64Ptr(point.Value)
			case "page_impressions_unique":
				m.Reach = int64Ptr(point.Value)
			case "page_engaged_users":
				m.Engagements = int64Ptr(point.Value)
			case "page_fan_adds":
				m.Followers = int64Ptr(point.Value)
			}
		}
	}

	metrics := make([]domain.DailyMetric, 0, len(byDate))
	for _, m := range byDate {
		metrics = append(metrics, *m)
	}
	return metrics, nil
}

func (c *Facebook) fetchPosts(ctx context.Context, params Params) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	next := fmt.Sprintf("%s/%s/posts", c.baseURL, params.ExternalAccountID)
	query := url.Values{
		"fields":       {"id,message,created_time,permalink_url,full_picture,shares,reactions.summary(true),comments.summary(true)"},
		"limit":        {"50"},
		"access_token": {params.AccessToken},
	}

	for page := 0; page < c.opts.MaxPages && next != ""; page++ {
		var parsed fbPostsResponse
		err := c.opts.Executor.Do(ctx, domain.PlatformFacebook, "posts", apiclient.Request{
			URL:   next,
			Query: query,
		}, &parsed)
		if err != nil {
			return nil, err
		}

		for _, post := range parsed.Data {
			postedAt, _ := time.Parse(time.RFC3339, post.CreatedTime)
			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformFacebook,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  post.ID,
				PostedAt:        postedAt,
				Caption:         post.Message,
				MediaType:       "post",
				URL:             post.Permalink,
				ThumbnailURL:    post.FullPicture,
				Metrics: map[string]int64{
					"likes":    post.Reactions.Summary.TotalCount,
					"comments": post.Comments.Summary.TotalCount,
					"shares":   post.Shares.Count,
				},
			})
		}

		next = parsed.Paging.Next
		query = nil
	}

	c.forEachPost(ctx, domain.PlatformFacebook, posts, func(ctx context.Context, post *domain.PostMetric) error {
		return c.fetchPostInsights(ctx, params, post)
	})

	return posts, nil
}

func (c *Facebook) fetchPostInsights(ctx context.Context, params Params, post *domain.PostMetric) error {
	var parsed igInsightsResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformFacebook, "post_insights", apiclient.Request{
		URL: fmt.Sprintf("%s/%s/insights", c.baseURL, post.ExternalPostID),
		Query: url.Values{
			"metric":       {"post_impressions,post_impressions_unique"},
			"access_token": {params.AccessToken},
		},
	}, &parsed)
	if err != nil {
		return err
	}

	for _, series := range parsed.Data {
		if len(series.Values) == 0 {
			continue
		}
		switch series.Name {
		case "post_impressions":
			post.Metrics["impressions"] = series.Values[0].Value
		case "post_impressions_unique":
			post.Metrics["reach"] = series.Values[0].Value
		}
	}

	return nil
}
