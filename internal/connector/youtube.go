package connector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

const (
	defaultYouTubeDataBaseURL      = "https://www.googleapis.com/youtube/v3"
	defaultYouTubeAnalyticsBaseURL = "https://youtubeanalytics.googleapis.com/v2"
)

// ytReportMetricVariants: estimatedMinutesWatched requires the monetary
// analytics scope on some accounts, so a reduced set is probed next.
var ytReportMetricVariants = []string{
	"views,estimatedMinutesWatched,subscribersGained,likes,comments,shares",
	"views,subscribersGained,likes,comments",
	"views,subscribersGained",
}

// YouTube syncs a channel via the Data and Analytics APIs.
type YouTube struct {
	base
	dataBaseURL      string
	analyticsBaseURL string
}

// NewYouTube creates the YouTube connector.
func NewYouTube(opts Options) *YouTube {
	return &YouTube{
		base:             newBase(opts),
		dataBaseURL:      defaultYouTubeDataBaseURL,
		analyticsBaseURL: defaultYouTubeAnalyticsBaseURL,
	}
}

// SetBaseURLs overrides the API base URLs. Intended for tests.
func (c *YouTube) SetBaseURLs(data, analytics string) {
	c.dataBaseURL = data
	c.analyticsBaseURL = analytics
}

func (c *YouTube) Platform() domain.Platform { return domain.PlatformYouTube }

type ytReportResponse struct {
	ColumnHeaders []struct {
		Name string `json:"name"`
	} `json:"columnHeaders"`
	Rows [][]any `json:"rows"`
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Thumbnails  struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type ytVideosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *YouTube) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("youtube sync requires an access token")
	}

	result := &Result{}

	daily, err := c.fetchDailyReport(ctx, params)
	if err != nil {
		c.opts.Logger.Warn("youtube analytics report unavailable, continuing with partial data",
			zap.String("channel", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		result.DailyMetrics = daily
	}

	posts, err := c.fetchVideos(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch youtube videos: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *YouTube) fetchDailyReport(ctx context.Context, params Params) ([]domain.DailyMetric, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	var parsed ytReportResponse
	_, err := c.negotiate(ctx, "youtube/reports", ytReportMetricVariants,
		func(ctx context.Context, metrics string, probing bool) error {
			expect := apiclient.Unexpected
			if probing {
				expect = apiclient.ExpectFailure
			}
			parsed = ytReportResponse{}
			return c.opts.Executor.Do(ctx, domain.PlatformYouTube, "reports", apiclient.Request{
				URL: c.analyticsBaseURL + "/reports",
				Query: url.Values{
					"ids":        {"channel==" + params.ExternalAccountID},
					"startDate":  {start.Format("2006-01-02")},
					"endDate":    {end.Format("2006-01-02")},
					"metrics":    {metrics},
					"dimensions": {"day"},
					"sort":       {"day"},
				},
				AccessToken: params.AccessToken,
				Expect:      expect,
			}, &parsed)
		})
	if err != nil {
		return nil, err
	}

	columns := make(map[string]int, len(parsed.ColumnHeaders))
	for i, header := range parsed.ColumnHeaders {
		columns[header.Name] = i
	}

	cell := func(row []any, name string) (int64, bool) {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return 0, false
		}
		// Report cells arrive as JSON numbers.
		v, ok := row[idx].(float64)
		if !ok {
			return 0, false
		}
		return int64(v), true
	}

	var metrics []domain.DailyMetric
	for _, row := range parsed.Rows {
		dayIdx, ok := columns["day"]
		if !ok || dayIdx >= len(row) {
			continue
		}
		dayStr, ok := row[dayIdx].(string)
		if !ok {
			continue
		}
		date, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			continue
		}

		m := domain.DailyMetric{
			TenantID:        params.TenantID,
			Platform:        domain.PlatformYouTube,
			SocialAccountID: params.SocialAccountID,
			Date:            day(date),
		}
		if v, ok := cell(row, "views"); ok {
			m.Views = int64Ptr(v)
		}
		if v, ok := cell(row, "estimatedMinutesWatched"); ok {
			m.WatchTimeSec = int64Ptr(v * 60)
		}
		if v, ok := cell(row, "subscribersGained"); ok {
			m.Followers = int64Ptr(v)
		}
		if v, ok := cell(row, "likes"); ok {
			m.Likes = int64Ptr(v)
		}
		if v, ok := cell(row, "comments"); ok {
			m.Comments = int64Ptr(v)
		}
		if v, ok := cell(row, "shares"); ok {
			m.Shares = int64Ptr(v)
		}
		metrics = append(metrics, m)
	}

	return metrics, nil
}

func (c *YouTube) fetchVideos(ctx context.Context, params Params) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	pageToken := ""
	for page := 0; page < c.opts.MaxPages; page++ {
		query := url.Values{
			"part":       {"snippet"},
			"forMine":    {"true"},
			"type":       {"video"},
			"order":      {"date"},
			"maxResults": {"50"},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var parsed ytSearchResponse
		err := c.opts.Executor.Do(ctx, domain.PlatformYouTube, "search", apiclient.Request{
			URL:         c.dataBaseURL + "/search",
			Query:       query,
			AccessToken: params.AccessToken,
		}, &parsed)
		if err != nil {
			return nil, err
		}

		for _, item := range parsed.Items {
			publishedAt, _ := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformYouTube,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  item.ID.VideoID,
				PostedAt:        publishedAt,
				Caption:         item.Snippet.Title,
				MediaType:       "video",
				URL:             "https://www.youtube.com/watch?v=" + item.ID.VideoID,
				ThumbnailURL:    item.Snippet.Thumbnails.High.URL,
				Metrics:         map[string]int64{},
			})
		}

		pageToken = parsed.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.forEachPost(ctx, domain.PlatformYouTube, posts, func(ctx context.Context, post *domain.PostMetric) error {
		return c.fetchVideoStatistics(ctx, params, post)
	})

	return posts, nil
}

func (c *YouTube) fetchVideoStatistics(ctx context.Context, params Params, post *domain.PostMetric) error {
	var parsed ytVideosResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformYouTube, "videos", apiclient.Request{
		URL: c.dataBaseURL + "/videos",
		Query: url.Values{
			"part": {"statistics"},
			"id":   {post.ExternalPostID},
		},
		AccessToken: params.AccessToken,
	}, &parsed)
	if err != nil {
		return err
	}

	if len(parsed.Items) == 0 {
		return fmt.Errorf("video %s not found", post.ExternalPostID)
	}

	stats := parsed.Items[0].Statistics
	post.Metrics["views"] = parseCount(stats.ViewCount)
	post.Metrics["likes"] = parseCount(stats.LikeCount)
	post.Metrics["comments"] = parseCount(stats.CommentCount)

	return nil
}
