package tokenvault

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/domain"
)

// expirySweepWindow selects accounts refreshed ahead of time by the sweep.
const expirySweepWindow = 24 * time.Hour

var defaultEndpoints = map[domain.Platform]string{
	domain.PlatformTikTok:   "https://open.tiktokapis.com/v2/oauth/token/",
	domain.PlatformYouTube:  "https://oauth2.googleapis.com/token",
	domain.PlatformTwitter:  "https://api.twitter.com/2/oauth2/token",
	domain.PlatformLinkedIn: "https://www.linkedin.com/oauth/v2/accessToken",
	// Meta tokens are introspected, not refreshed.
	domain.PlatformFacebook:  "https://graph.facebook.com/debug_token",
	domain.PlatformInstagram: "https://graph.facebook.com/debug_token",
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r tokenResponse) expiresAt() *time.Time {
	if r.ExpiresIn <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	return &t
}

// refresh runs the provider's refresh grant. The four refreshable providers
// all speak grant_type=refresh_token but disagree on parameter names and
// client authentication.
func (v *Vault) refresh(ctx context.Context, account *domain.SocialAccount, tokens *Tokens) (*Tokens, error) {
	if tokens.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	client := v.oauth.Client(string(account.Platform))
	endpoint := v.endpoints[account.Platform]

	var req apiclient.Request
	switch account.Platform {
	case domain.PlatformTikTok:
		// TikTok authenticates with client_key/client_secret in the form.
		req = apiclient.Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Form: url.Values{
				"client_key":    {client.ClientID},
				"client_secret": {client.ClientSecret},
				"grant_type":    {"refresh_token"},
				"refresh_token": {tokens.RefreshToken},
			},
		}

	case domain.PlatformYouTube:
		req = apiclient.Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Form: url.Values{
				"client_id":     {client.ClientID},
				"client_secret": {client.ClientSecret},
				"grant_type":    {"refresh_token"},
				"refresh_token": {tokens.RefreshToken},
			},
		}

	case domain.PlatformTwitter:
		// Twitter wants confidential clients on basic auth.
		basic := base64.StdEncoding.EncodeToString([]byte(client.ClientID + ":" + client.ClientSecret))
		req = apiclient.Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Header: http.Header{"Authorization": {"Basic " + basic}},
			Form: url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {tokens.RefreshToken},
				"client_id":     {client.ClientID},
			},
		}

	case domain.PlatformLinkedIn:
		req = apiclient.Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Form: url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {tokens.RefreshToken},
				"client_id":     {client.ClientID},
				"client_secret": {client.ClientSecret},
			},
		}

	default:
		return nil, fmt.Errorf("platform %s has no refresh grant", account.Platform)
	}

	var resp tokenResponse
	if err := v.executor.Do(ctx, account.Platform, "oauth/token", req, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carried no access token")
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		// Google does not rotate refresh tokens; keep the current one.
		refreshToken = tokens.RefreshToken
	}

	return &Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    resp.expiresAt(),
	}, nil
}

type debugTokenResponse struct {
	Data struct {
		IsValid   bool  `json:"is_valid"`
		ExpiresAt int64 `json:"expires_at"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

// validateMetaToken introspects a Meta token via debug_token. Long-lived page
// tokens cannot be refreshed; an invalid one means the account must be
// reconnected, so it is marked expired here.
func (v *Vault) validateMetaToken(ctx context.Context, account *domain.SocialAccount, accessToken string) error {
	client := v.oauth.Client(string(account.Platform))

	var resp debugTokenResponse
	err := v.executor.Do(ctx, account.Platform, "debug_token", apiclient.Request{
		URL: v.endpoints[account.Platform],
		Query: url.Values{
			"input_token":  {accessToken},
			"access_token": {client.ClientID + "|" + client.ClientSecret},
		},
	}, &resp)
	if err != nil {
		return err
	}

	if !resp.Data.IsValid {
		reason := "meta token no longer valid"
		if resp.Data.Error != nil && resp.Data.Error.Message != "" {
			reason = resp.Data.Error.Message
		}
		if markErr := v.MarkAccountExpired(ctx, account.ID, reason); markErr != nil {
			v.logger.Error("failed to mark account expired", zap.String("account_id", account.ID), zap.Error(markErr))
		}
		return fmt.Errorf("%w: %s", ErrRefreshFailed, reason)
	}

	return nil
}

// RefreshResult summarizes one account's outcome in a sweep.
type RefreshResult struct {
	AccountID string          `json:"account_id"`
	Platform  domain.Platform `json:"platform"`
	Refreshed bool            `json:"refreshed"`
	Error     string          `json:"error,omitempty"`
}

// SweepSummary is the outcome of one RefreshAllExpiringTokens pass.
type SweepSummary struct {
	Refreshed int             `json:"refreshed"`
	Failed    int             `json:"failed"`
	Results   []RefreshResult `json:"results"`
}

// RefreshAllExpiringTokens refreshes every active account whose token expires
// within 24 hours, skipping the self-validating Meta platforms. Individual
// failures are recorded in the summary and never abort the sweep.
func (v *Vault) RefreshAllExpiringTokens(ctx context.Context) (*SweepSummary, error) {
	cutoff := time.Now().Add(expirySweepWindow)
	exclude := []domain.Platform{domain.PlatformInstagram, domain.PlatformFacebook}

	accounts, err := v.accounts.ListExpiringBefore(ctx, cutoff, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring accounts: %w", err)
	}

	summary := &SweepSummary{}
	for _, account := range accounts {
		result := RefreshResult{AccountID: account.ID, Platform: account.Platform}

		if _, err := v.RefreshAccount(ctx, account.ID); err != nil {
			result.Error = err.Error()
			summary.Failed++
		} else {
			result.Refreshed = true
			summary.Refreshed++
		}

		summary.Results = append(summary.Results, result)
	}

	v.logger.Info("token refresh sweep finished",
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}
