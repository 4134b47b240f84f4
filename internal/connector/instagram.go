package connector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// igDailyMetricVariants are the account-insight metric sets in preference
// order. Meta keeps renaming these ("impressions" became "views" for newer
// accounts), so the connector probes until one is accepted.
var igDailyMetricVariants = []string{
	"impressions,reach,follower_count",
	"views,reach,follower_count",
	"reach,follower_count",
}

// igPostMetricVariants are the per-media insight metric sets, same story.
var igPostMetricVariants = []string{
	"impressions,reach,saved,likes,comments,shares",
	"views,reach,saved,likes,comments,shares",
	"reach,saved",
}

// Instagram syncs an Instagram business account via the Meta Graph API.
type Instagram struct {
	base
	baseURL string
}

// NewInstagram creates the Instagram connector.
func NewInstagram(opts Options) *Instagram {
	return &Instagram{base: newBase(opts), baseURL: defaultGraphBaseURL}
}

// SetBaseURL overrides the Graph API base URL. Intended for tests.
func (c *Instagram) SetBaseURL(u string) { c.baseURL = u }

func (c *Instagram) Platform() domain.Platform { return domain.PlatformInstagram }

type igInsightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value   int64  `json:"value"`
			EndTime string `json:"end_time"`
		} `json:"values"`
	} `json:"data"`
}

type igMediaResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Caption       string `json:"caption"`
		MediaType     string `json:"media_type"`
		Permalink     string `json:"permalink"`
		ThumbnailURL  string `json:"thumbnail_url"`
		Timestamp     string `json:"timestamp"`
		LikeCount     int64  `json:"like_count"`
		CommentsCount int64  `json:"comments_count"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (c *Instagram) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("instagram sync requires an access token")
	}

	result := &Result{}

	daily, err := c.fetchDailyMetrics(ctx, params)
	if err != nil {
		// Missing insights scope must not sink the media sync.
		c.opts.Logger.Warn("instagram account insights unavailable, continuing with partial data",
			zap.String("account", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		result.DailyMetrics = daily
	}

	posts, err := c.fetchPosts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instagram media: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *Instagram) fetchDailyMetrics(ctx context.Context, params Params) ([]domain.DailyMetric, error) {
	since := time.Now().AddDate(0, 0, -30)

	var parsed igInsightsResponse
	_, err := c.negotiate(ctx, "instagram/insights", igDailyMetricVariants,
		func(ctx context.Context, metrics string, probing bool) error {
			expect := apiclient.Unexpected
			if probing {
				expect = apiclient.ExpectFailure
			}
			parsed = igInsightsResponse{}
			return c.opts.Executor.Do(ctx, domain.PlatformInstagram, "insights", apiclient.Request{
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
	metricFor := func(endTime string) *domain.DailyMetric {
		ts, err := time.Parse(time.RFC3339, endTime)
		if err != nil {
			return nil
		}
		date := day(ts)
		m, ok := byDate[date]
		if !ok {
			m = &domain.DailyMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformInstagram,
				SocialAccountID: params.SocialAccountID,
				Date:            date,
			}
			byDate[date] = m
		}
		return m
	}

	for _, series := range parsed.Data {
		for _, point := range series.Values {
			m := metricFor(point.EndTime)
			if m == nil {
				continue
			}
			switch series.Name {
			case "impressions":
				m.Impressions = int64Ptr(point.Value)
			case "views":
				m.Views = int64Ptr(point.Value)
			case "reach":
				m.Reach = int64Ptr(point.Value)
			case "follower_count":
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

func (c *Instagram) fetchPosts(ctx context.Context, params Params) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	next := fmt.Sprintf("%s/%s/media", c.baseURL, params.ExternalAccountID)
	query := url.Values{
		"fields":       {"id,caption,media_type,permalink,thumbnail_url,timestamp,like_count,comments_count"},
		"limit":        {"50"},
		"access_token": {params.AccessToken},
	}

	for page := 0; page < c.opts.MaxPages && next != ""; page++ {
		var parsed igMediaResponse
		err := c.opts.Executor.Do(ctx, domain.PlatformInstagram, "media", apiclient.Request{
			URL:   next,
			Query: query,
		}, &parsed)
		if err != nil {
			return nil, err
		}

		for _, media := range parsed.Data {
			postedAt, _ := time.Parse(time.RFC3339, media.Timestamp)
			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformInstagram,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  media.ID,
				PostedAt:        postedAt,
				Caption:         media.Caption,
				MediaType:       strings.ToLower(media.MediaType),
				URL:             media.Permalink,
				ThumbnailURL:    media.ThumbnailURL,
				Metrics: map[string]int64{
					"likes":    media.LikeCount,
					"comments": media.CommentsCount,
				},
			})
		}

		// Graph paging URLs already embed the query.
		next = parsed.Paging.Next
		query = nil
	}

	c.forEachPost(ctx, domain.PlatformInstagram, posts, func(ctx context.Context, post *domain.PostMetric) error {
		return c.fetchPostInsights(ctx, params, post)
	})

	return posts, nil
}

func (c *Instagram) fetchPostInsights(ctx context.Context, params Params, post *domain.PostMetric) error {
	var parsed igInsightsResponse
	_, err := c.negotiate(ctx, "instagram/media-insights", igPostMetricVariants,
		func(ctx context.Context, metrics string, probing bool) error {
			expect := apiclient.Unexpected
			if probing {
				expect = apiclient.ExpectFailure
			}
			parsed = igInsightsResponse{}
			return c.opts.Executor.Do(ctx, domain.PlatformInstagram, "media_insights", apiclient.Request{
				URL: fmt.Sprintf("%s/%s/insights", c.baseURL, post.ExternalPostID),
				Query: url.Values{
					"metric":       {metrics},
					"access_token": {params.AccessToken},
				},
				Expect: expect,
			}, &parsed)
		})
	if err != nil {
		return err
	}

	for _, series := range parsed.Data {
		if len(series.Values) == 0 {
			continue
		}
		value := series.Values[0].Value
		switch series.Name {
		case "impressions":
			post.Metrics["impressions"] = value
		case "views":
			post.Metrics["views"] = value
		case "reach":
			post.Metrics["reach"] = value
		case "saved":
			post.Metrics["saves"] = value
		case "likes":
			post.Metrics["likes"] = value
		case "comments":
			post.Metrics["comments"] = value
		case "shares":
			post.Metrics["shares"] = value
		}
	}

	return nil
}
