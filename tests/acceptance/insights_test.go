package acceptance

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func (s *Suite) TestFollowerTrendReconstruction() {
	account := s.seedAccount("tenant-1", domain.PlatformTikTok, "tt-trend")

	d1 := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -2)
	metrics := []domain.DailyMetric{
		{TenantID: "tenant-1", Platform: account.Platform, SocialAccountID: account.ID, Date: d1, Followers: int64Ptr(3)},
		{TenantID: "tenant-1", Platform: account.Platform, SocialAccountID: account.ID, Date: d1.AddDate(0, 0, 1), Followers: int64Ptr(4)},
		{TenantID: "tenant-1", Platform: account.Platform, SocialAccountID: account.ID, Date: d1.AddDate(0, 0, 2), Followers: int64Ptr(4437)},
	}
	s.Require().NoError(s.Repositories.DailyMetric.UpsertBatch(context.Background(), metrics))

	resp, err := http.Get(s.BaseURL + "/api/v1/insights/follower-trend?tenant_id=tenant-1&platform=tiktok")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var parsed struct {
		Trends []struct {
			SocialAccountID string `json:"social_account_id"`
			Points          []struct {
				Followers int64 `json:"followers"`
			} `json:"points"`
		} `json:"trends"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&parsed))
	s.Require().Len(parsed.Trends, 1)
	s.Equal(account.ID, parsed.Trends[0].SocialAccountID)

	points := parsed.Trends[0].Points
	s.Require().Len(points, 3)
	s.Equal(int64(3), points[0].Followers)
	s.Equal(int64(7), points[1].Followers)
	s.Equal(int64(4437), points[2].Followers)
}

func (s *Suite) TestTopPostsRanksAcrossPlatforms() {
	tiktok := s.seedAccount("tenant-1", domain.PlatformTikTok, "tt-posts")
	instagram := s.seedAccount("tenant-1", domain.PlatformInstagram, "ig-posts")

	now := time.Now().UTC()
	posts := []domain.PostMetric{
		{
			TenantID:        "tenant-1",
			Platform:        tiktok.Platform,
			SocialAccountID: tiktok.ID,
			ExternalPostID:  "video-1",
			PostedAt:        now.Add(-2 * time.Hour),
			MediaType:       "video",
			Metrics:         map[string]int64{"views": 900, "likes": 10},
		},
		{
			TenantID:        "tenant-1",
			Platform:        instagram.Platform,
			SocialAccountID: instagram.ID,
			ExternalPostID:  "media-1",
			PostedAt:        now.Add(-time.Hour),
			MediaType:       "image",
			Metrics:         map[string]int64{"impressions": 1500, "likes": 40},
		},
	}
	s.Require().NoError(s.Repositories.PostMetric.UpsertBatch(context.Background(), posts))

	resp, err := http.Get(s.BaseURL + "/api/v1/insights/top-posts?tenant_id=tenant-1&limit=1")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var parsed struct {
		Posts []domain.PostMetric `json:"posts"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&parsed))
	s.Require().Len(parsed.Posts, 1)
	s.Equal("media-1", parsed.Posts[0].ExternalPostID)
}

func (s *Suite) TestTopPostsRequiresTenant() {
	resp, err := http.Get(s.BaseURL + "/api/v1/insights/top-posts")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
