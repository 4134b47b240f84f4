package acceptance

import (
	"net/http"
	"net/url"
	"strings"
)

// noRedirectClient returns provider/dashboard redirects to the test instead
// of following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *Suite) TestOAuthConnectRedirectsToProvider() {
	client := noRedirectClient()

	resp, err := client.Get(s.BaseURL + "/api/v1/oauth/instagram/connect?tenant_id=tenant-1")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	s.Require().NoError(err)
	s.True(strings.HasPrefix(location.String(), "https://www.facebook.com/"), "unexpected authorize host: %s", location)

	query := location.Query()
	s.Equal("ig-client", query.Get("client_id"))
	s.Equal("code", query.Get("response_type"))
	s.NotEmpty(query.Get("state"))
	s.Contains(query.Get("redirect_uri"), "/api/v1/oauth/instagram/callback")

	var stateCookie *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "oauth_state" {
			stateCookie = cookie
		}
	}
	s.Require().NotNil(stateCookie, "state cookie missing")
	s.Equal(query.Get("state"), stateCookie.Value)
}

func (s *Suite) TestOAuthConnectRequiresPKCEForTikTok() {
	client := noRedirectClient()

	resp, err := client.Get(s.BaseURL + "/api/v1/oauth/tiktok/connect?tenant_id=tenant-1")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	s.Require().NoError(err)
	query := location.Query()
	s.Equal("tt-client", query.Get("client_key"))
	s.NotEmpty(query.Get("code_challenge"))
	s.Equal("S256", query.Get("code_challenge_method"))
}

func (s *Suite) TestOAuthConnectUnknownPlatform() {
	resp, err := http.Get(s.BaseURL + "/api/v1/oauth/myspace/connect?tenant_id=tenant-1")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestOAuthConnectRequiresTenant() {
	resp, err := http.Get(s.BaseURL + "/api/v1/oauth/instagram/connect")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestOAuthCallbackProviderError() {
	client := noRedirectClient()

	resp, err := client.Get(s.BaseURL + "/api/v1/oauth/instagram/callback?error=access_denied")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	s.Require().NoError(err)
	s.Equal("access_denied", location.Query().Get("error"))
}

func (s *Suite) TestOAuthCallbackStateMismatch() {
	client := noRedirectClient()

	callbackURL := s.BaseURL + "/api/v1/oauth/instagram/callback?code=abc&state=" + url.QueryEscape("forged-state")
	resp, err := client.Get(callbackURL)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	s.Require().NoError(err)
	s.Equal("state_mismatch", location.Query().Get("error"))
}
