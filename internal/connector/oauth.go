package connector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

// OAuthApp carries the credentials of a registered provider application.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
}

// OAuthTokens is the outcome of an authorization-code exchange.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	// ExternalAccountID is set when the token response itself identifies
	// the account (TikTok open_id). Other platforms resolve it with a
	// follow-up profile call.
	ExternalAccountID string
}

type oauthEndpoints struct {
	authorizeURL string
	tokenURL     string
}

var defaultOAuthEndpoints = map[domain.Platform]oauthEndpoints{
	domain.PlatformInstagram: {
		authorizeURL: "https://www.facebook.com/v19.0/dialog/oauth",
		tokenURL:     "https://graph.facebook.com/v19.0/oauth/access_token",
	},
	domain.PlatformFacebook: {
		authorizeURL: "https://www.facebook.com/v19.0/dialog/oauth",
		tokenURL:     "https://graph.facebook.com/v19.0/oauth/access_token",
	},
	domain.PlatformTikTok: {
		authorizeURL: "https://www.tiktok.com/v2/auth/authorize/",
		tokenURL:     "https://open.tiktokapis.com/v2/oauth/token/",
	},
	domain.PlatformYouTube: {
		authorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:     "https://oauth2.googleapis.com/token",
	},
	domain.PlatformTwitter: {
		authorizeURL: "https://twitter.com/i/oauth2/authorize",
		tokenURL:     "https://api.twitter.com/2/oauth2/token",
	},
	domain.PlatformLinkedIn: {
		authorizeURL: "https://www.linkedin.com/oauth/v2/authorization",
		tokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
	},
}

var oauthScopes = map[domain.Platform]string{
	domain.PlatformInstagram: "instagram_basic,instagram_manage_insights,pages_show_list,pages_read_engagement",
	domain.PlatformFacebook:  "pages_show_list,pages_read_engagement,read_insights",
	domain.PlatformTikTok:    "user.info.basic,user.info.stats,video.list",
	domain.PlatformYouTube:   "https://www.googleapis.com/auth/youtube.readonly https://www.googleapis.com/auth/yt-analytics.readonly",
	domain.PlatformTwitter:   "tweet.read users.read offline.access",
	domain.PlatformLinkedIn:  "r_organization_social rw_organization_admin r_organization_followers",
}

// OAuthFlow builds provider authorization URLs and performs the
// authorization-code exchange.
type OAuthFlow struct {
	executor  *apiclient.Executor
	endpoints map[domain.Platform]oauthEndpoints
}

// NewOAuthFlow creates an OAuthFlow backed by the given executor.
func NewOAuthFlow(executor *apiclient.Executor) *OAuthFlow {
	endpoints := make(map[domain.Platform]oauthEndpoints, len(defaultOAuthEndpoints))
	for platform, ep := range defaultOAuthEndpoints {
		endpoints[platform] = ep
	}
	return &OAuthFlow{executor: executor, endpoints: endpoints}
}

// SetEndpoints overrides the authorize and token URLs for one platform.
// Intended for tests.
func (f *OAuthFlow) SetEndpoints(platform domain.Platform, authorizeURL, tokenURL string) {
	f.endpoints[platform] = oauthEndpoints{authorizeURL: authorizeURL, tokenURL: tokenURL}
}

// UsesPKCE reports whether the platform's authorization flow requires a
// PKCE code challenge.
func UsesPKCE(platform domain.Platform) bool {
	return platform == domain.PlatformTikTok || platform == domain.PlatformTwitter
}

// AuthorizeURL builds the provider consent-screen URL for the given state
// and optional PKCE challenge.
func (f *OAuthFlow) AuthorizeURL(platform domain.Platform, app OAuthApp, redirectURI, state, codeChallenge string) (string, error) {
	ep, ok := f.endpoints[platform]
	if !ok {
		return "", fmt.Errorf("no oauth endpoints for platform %s", platform)
	}

	query := url.Values{
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {oauthScopes[platform]},
	}

	switch platform {
	case domain.PlatformTikTok:
		query.Set("client_key", app.ClientID)
	default:
		query.Set("client_id", app.ClientID)
	}

	if UsesPKCE(platform) {
		if codeChallenge == "" {
			return "", fmt.Errorf("platform %s requires a pkce code challenge", platform)
		}
		query.Set("code_challenge", codeChallenge)
		query.Set("code_challenge_method", "S256")
	}

	if platform == domain.PlatformYouTube {
		// Google only issues a refresh token for offline access with an
		// explicit consent prompt.
		query.Set("access_type", "offline")
		query.Set("prompt", "consent")
	}

	return ep.authorizeURL + "?" + query.Encode(), nil
}

type exchangeResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange swaps an authorization code for tokens. codeVerifier is required
// for PKCE platforms and ignored elsewhere.
func (f *OAuthFlow) Exchange(ctx context.Context, platform domain.Platform, app OAuthApp, redirectURI, code, codeVerifier string) (*OAuthTokens, error) {
	ep, ok := f.endpoints[platform]
	if !ok {
		return nil, fmt.Errorf("no oauth endpoints for platform %s", platform)
	}

	req := apiclient.Request{
		Method: "POST",
		URL:    ep.tokenURL,
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	switch platform {
	case domain.PlatformInstagram, domain.PlatformFacebook:
		// Meta exchanges codes over GET with credentials in the query.
		req.Method = "GET"
		req.Query = url.Values{
			"client_id":     {app.ClientID},
			"client_secret": {app.ClientSecret},
			"redirect_uri":  {redirectURI},
			"code":          {code},
		}
	case domain.PlatformTikTok:
		form.Set("client_key", app.ClientID)
		form.Set("client_secret", app.ClientSecret)
		form.Set("code_verifier", codeVerifier)
		req.Form = form
	case domain.PlatformTwitter:
		form.Set("code_verifier", codeVerifier)
		req.Form = form
		req.Header = basicAuthHeader(app.ClientID, app.ClientSecret)
	default:
		form.Set("client_id", app.ClientID)
		form.Set("client_secret", app.ClientSecret)
		req.Form = form
	}

	var parsed exchangeResponse
	if err := f.executor.Do(ctx, platform, "oauth/token", req, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("oauth exchange rejected: %s: %s", parsed.Error, parsed.ErrorDescription)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("oauth exchange returned no access token")
	}

	tokens := &OAuthTokens{
		AccessToken:       parsed.AccessToken,
		RefreshToken:      parsed.RefreshToken,
		ExternalAccountID: parsed.OpenID,
	}
	if parsed.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
		tokens.ExpiresAt = &t
	}

	if platform.SelfValidating() {
		return f.extendMetaToken(ctx, platform, app, ep.tokenURL, tokens)
	}
	return tokens, nil
}

// extendMetaToken swaps the short-lived user token from the code exchange
// for a long-lived one. Meta tokens have no refresh token; validity is
// checked against the debug endpoint instead.
func (f *OAuthFlow) extendMetaToken(ctx context.Context, platform domain.Platform, app OAuthApp, tokenURL string, short *OAuthTokens) (*OAuthTokens, error) {
	var parsed exchangeResponse
	err := f.executor.Do(ctx, platform, "oauth/token", apiclient.Request{
		URL: tokenURL,
		Query: url.Values{
			"grant_type":        {"fb_exchange_token"},
			"client_id":         {app.ClientID},
			"client_secret":     {app.ClientSecret},
			"fb_exchange_token": {short.AccessToken},
		},
		Expect: apiclient.ExpectFailure,
	}, &parsed)
	if err != nil || parsed.AccessToken == "" {
		// The short-lived token still works for roughly an hour.
		return short, nil
	}

	long := &OAuthTokens{AccessToken: parsed.AccessToken}
	if parsed.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
		long.ExpiresAt = &t
	}
	return long, nil
}

// ResolveAccount fetches the provider-side identity for a freshly issued
// token so the account row can be keyed by a stable external ID.
func (f *OAuthFlow) ResolveAccount(ctx context.Context, platform domain.Platform, accessToken string) (externalID, displayName string, err error) {
	switch platform {
	case domain.PlatformInstagram, domain.PlatformFacebook:
		var parsed struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		err = f.executor.Do(ctx, platform, "me", apiclient.Request{
			URL:         "https://graph.facebook.com/v19.0/me",
			AccessToken: accessToken,
		}, &parsed)
		return parsed.ID, parsed.Name, err
	case domain.PlatformYouTube:
		var parsed struct {
			Items []struct {
				ID      string `json:"id"`
				Snippet struct {
					Title string `json:"title"`
				} `json:"snippet"`
			} `json:"items"`
		}
		err = f.executor.Do(ctx, platform, "channels", apiclient.Request{
			URL:         "https://www.googleapis.com/youtube/v3/channels",
			Query:       url.Values{"part": {"snippet"}, "mine": {"true"}},
			AccessToken: accessToken,
		}, &parsed)
		if err != nil {
			return "", "", err
		}
		if len(parsed.Items) == 0 {
			return "", "", fmt.Errorf("no youtube channel for token")
		}
		return parsed.Items[0].ID, parsed.Items[0].Snippet.Title, nil
	case domain.PlatformTwitter:
		var parsed struct {
			Data struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"data"`
		}
		err = f.executor.Do(ctx, platform, "users/me", apiclient.Request{
			URL:         "https://api.twitter.com/2/users/me",
			AccessToken: accessToken,
		}, &parsed)
		return parsed.Data.ID, parsed.Data.Username, err
	case domain.PlatformLinkedIn:
		var parsed struct {
			Sub  string `json:"sub"`
			Name string `json:"name"`
		}
		err = f.executor.Do(ctx, platform, "userinfo", apiclient.Request{
			URL:         "https://api.linkedin.com/v2/userinfo",
			AccessToken: accessToken,
		}, &parsed)
		return parsed.Sub, parsed.Name, err
	case domain.PlatformTikTok:
		var parsed struct {
			Data struct {
				User struct {
					OpenID      string `json:"open_id"`
					DisplayName string `json:"display_name"`
				} `json:"user"`
			} `json:"data"`
		}
		err = f.executor.Do(ctx, platform, "user/info", apiclient.Request{
			URL:         "https://open.tiktokapis.com/v2/user/info/",
			Query:       url.Values{"fields": {"open_id,display_name"}},
			AccessToken: accessToken,
		}, &parsed)
		return parsed.Data.User.OpenID, parsed.Data.User.DisplayName, err
	}
	return "", "", fmt.Errorf("unknown platform %s", platform)
}

func basicAuthHeader(id, secret string) map[string][]string {
	cred := base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
	return map[string][]string{"Authorization": {"Basic " + cred}}
}
