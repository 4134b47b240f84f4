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

const defaultTikTokBaseURL = "https://open.tiktokapis.com/v2"

// TikTok syncs a TikTok creator account via the open API v2.
type TikTok struct {
	base
	baseURL string
}

// NewTikTok creates the TikTok connector.
func NewTikTok(opts Options) *TikTok {
	return &TikTok{base: newBase(opts), baseURL: defaultTikTokBaseURL}
}

// SetBaseURL overrides the API base URL. Intended for tests.
func (c *TikTok) SetBaseURL(u string) { c.baseURL = u }

func (c *TikTok) Platform() domain.Platform { return domain.PlatformTikTok }

type tiktokUserResponse struct {
	Data struct {
		User struct {
			FollowerCount int64 `json:"follower_count"`
			VideoCount    int64 `json:"video_count"`
		} `json:"user"`
	} `json:"data"`
}

type tiktokVideoListResponse struct {
	Data struct {
		Videos []struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			CreateTime    int64  `json:"create_time"`
			ShareURL      string `json:"share_url"`
			CoverImageURL string `json:"cover_image_url"`
			ViewCount     int64  `json:"view_count"`
			LikeCount     int64  `json:"like_count"`
			CommentCount  int64  `json:"comment_count"`
			ShareCount    int64  `json:"share_count"`
		} `json:"videos"`
		Cursor  int64 `json:"cursor"`
		HasMore bool  `json:"has_more"`
	} `json:"data"`
}

func (c *TikTok) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("tiktok sync requires an access token")
	}

	result := &Result{}

	// TikTok exposes no historical series; today's snapshot is the daily
	// metric, accumulated into a trend across sync runs.
	var userResp tiktokUserResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformTikTok, "user/info", apiclient.Request{
		URL:         c.baseURL + "/user/info/",
		Query:       url.Values{"fields": {"follower_count,video_count"}},
		AccessToken: params.AccessToken,
	}, &userResp)
	if err != nil {
		c.opts.Logger.Warn("tiktok user info unavailable, continuing with partial data",
			zap.String("account", params.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		result.DailyMetrics = append(result.DailyMetrics, domain.DailyMetric{
			TenantID:        params.TenantID,
			Platform:        domain.PlatformTikTok,
			SocialAccountID: params.SocialAccountID,
			Date:            day(time.Now()),
			Followers:       int64Ptr(userResp.Data.User.FollowerCount),
			PostsCount:      int64Ptr(userResp.Data.User.VideoCount),
		})
	}

	posts, err := c.fetchVideos(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tiktok videos: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *TikTok) fetchVideos(ctx context.Context, params Params) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	cursor := int64(0)
	for page := 0; page < c.opts.MaxPages; page++ {
		var parsed tiktokVideoListResponse
		err := c.opts.Executor.Do(ctx, domain.PlatformTikTok, "video/list", apiclient.Request{
			Method: "POST",
			URL:    c.baseURL + "/video/list/",
			Query:  url.Values{"fields": {"id,title,create_time,share_url,cover_image_url,view_count,like_count,comment_count,share_count"}},
			Body: map[string]any{
				"max_count": 20,
				"cursor":    cursor,
			},
			AccessToken: params.AccessToken,
		}, &parsed)
		if err != nil {
			return nil, err
		}

		for _, video := range parsed.Data.Videos {
			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformTikTok,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  video.ID,
				PostedAt:        time.Unix(video.CreateTime, 0).UTC(),
				Caption:         video.Title,
				MediaType:       "video",
				URL:             video.ShareURL,
				ThumbnailURL:    video.CoverImageURL,
				Metrics: map[string]int64{
					"views":    video.ViewCount,
					"likes":    video.LikeCount,
					"comments": video.CommentCount,
					"shares":   video.ShareCount,
				},
			})
		}

		if !parsed.Data.HasMore {
			break
		}
		cursor = parsed.Data.Cursor
	}

	return posts, nil
}
