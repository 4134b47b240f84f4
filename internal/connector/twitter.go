package connector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

const defaultTwitterBaseURL = "https://api.twitter.com/2"

// twTweetFieldVariants: non_public_metrics needs user-context auth on the
// tweet owner and is rejected for some access tiers, so a public-only set is
// probed next.
var twTweetFieldVariants = []string{
	"created_at,text,public_metrics,non_public_metrics",
	"created_at,text,public_metrics",
}

// Twitter syncs an account via the v2 API.
type Twitter struct {
	base
	baseURL string
}

// NewTwitter creates the Twitter connector.
func NewTwitter(opts Options) *Twitter {
	return &Twitter{base: newBase(opts), baseURL: defaultTwitterBaseURL}
}

// SetBaseURL overrides the API base URL. Intended for tests.
func (c *Twitter) SetBaseURL(u string) { c.baseURL = u }

func (c *Twitter) Platform() domain.Platform { return domain.PlatformTwitter }

type twUserResponse struct {
	Data struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		PublicMetrics struct {
			FollowersCount int64 `json:"followers_count"`
			TweetCount     int64 `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

type twTweetMetrics struct {
	RetweetCount    int64 `json:"retweet_count"`
	ReplyCount      int64 `json:"reply_count"`
	LikeCount       int64 `json:"like_count"`
	QuoteCount      int64 `json:"quote_count"`
	ImpressionCount int64 `json:"impression_count"`
	BookmarkCount   int64 `json:"bookmark_count"`
}

type twTimelineResponse struct {
	Data []struct {
		ID               string          `json:"id"`
		Text             string          `json:"text"`
		CreatedAt        string          `json:"created_at"`
		PublicMetrics    twTweetMetrics  `json:"public_metrics"`
		NonPublicMetrics *twTweetMetrics `json:"non_public_metrics"`
	} `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

func (c *Twitter) Sync(ctx context.Context, params Params) (*Result, error) {
	if params.AccessToken == "" {
		return nil, fmt.Errorf("twitter sync requires an access token")
	}

	result := &Result{}

	user, err := c.fetchUser(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch twitter user: %w", err)
	}

	// The v2 API has no historical follower series, so each sync records a
	// snapshot for today and the trend is reconstructed downstream.
	result.DailyMetrics = []domain.DailyMetric{{
		TenantID:        params.TenantID,
		Platform:        domain.PlatformTwitter,
		SocialAccountID: params.SocialAccountID,
		Date:            day(time.Now()),
		Followers:       int64Ptr(user.Data.PublicMetrics.FollowersCount),
		PostsCount:      int64Ptr(user.Data.PublicMetrics.TweetCount),
	}}

	posts, err := c.fetchTweets(ctx, params, user.Data.ID, user.Data.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tweets: %w", err)
	}
	result.Posts = posts

	result.DailyMetrics = dedupeDaily(result.DailyMetrics)
	return result, nil
}

func (c *Twitter) fetchUser(ctx context.Context, params Params) (*twUserResponse, error) {
	var parsed twUserResponse
	err := c.opts.Executor.Do(ctx, domain.PlatformTwitter, "users/me", apiclient.Request{
		URL: c.baseURL + "/users/me",
		Query: url.Values{
			"user.fields": {"public_metrics"},
		},
		AccessToken: params.AccessToken,
	}, &parsed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (c *Twitter) fetchTweets(ctx context.Context, params Params, userID, username string) ([]domain.PostMetric, error) {
	var posts []domain.PostMetric

	nextToken := ""
	for page := 0; page < c.opts.MaxPages; page++ {
		var parsed twTimelineResponse
		_, err := c.negotiate(ctx, "twitter/tweets", twTweetFieldVariants,
			func(ctx context.Context, fields string, probing bool) error {
				expect := apiclient.Unexpected
				if probing {
					expect = apiclient.ExpectFailure
				}
				query := url.Values{
					"tweet.fields": {fields},
					"max_results":  {"100"},
				}
				if nextToken != "" {
					query.Set("pagination_token", nextToken)
				}
				parsed = twTimelineResponse{}
				return c.opts.Executor.Do(ctx, domain.PlatformTwitter, "users/tweets", apiclient.Request{
					URL:         c.baseURL + "/users/" + userID + "/tweets",
					Query:       query,
					AccessToken: params.AccessToken,
					Expect:      expect,
				}, &parsed)
			})
		if err != nil {
			return nil, err
		}

		for _, tweet := range parsed.Data {
			createdAt, _ := time.Parse(time.RFC3339, tweet.CreatedAt)
			metrics := map[string]int64{
				"likes":    tweet.PublicMetrics.LikeCount,
				"comments": tweet.PublicMetrics.ReplyCount,
				"shares":   tweet.PublicMetrics.RetweetCount + tweet.PublicMetrics.QuoteCount,
				"saves":    tweet.PublicMetrics.BookmarkCount,
				"quotes":   tweet.PublicMetrics.QuoteCount,
				"retweets": tweet.PublicMetrics.RetweetCount,
			}
			if tweet.PublicMetrics.ImpressionCount > 0 {
				metrics["impressions"] = tweet.PublicMetrics.ImpressionCount
			}
			if tweet.NonPublicMetrics != nil && tweet.NonPublicMetrics.ImpressionCount > 0 {
				metrics["impressions"] = tweet.NonPublicMetrics.ImpressionCount
			}

			posts = append(posts, domain.PostMetric{
				TenantID:        params.TenantID,
				Platform:        domain.PlatformTwitter,
				SocialAccountID: params.SocialAccountID,
				ExternalPostID:  tweet.ID,
				PostedAt:        createdAt,
				Caption:         tweet.Text,
				MediaType:       "tweet",
				URL:             "https://twitter.com/" + username + "/status/" + tweet.ID,
				Metrics:         metrics,
			})
		}

		nextToken = parsed.Meta.NextToken
		if nextToken == "" {
			break
		}
	}

	return posts, nil
}
