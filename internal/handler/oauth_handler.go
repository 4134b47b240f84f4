package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/config"
	"github.com/pulsoria/social-sync/internal/connector"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/oauthstate"
	"github.com/pulsoria/social-sync/internal/tokenvault"
)

const (
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 3600
	stateCookiePath   = "/api/v1/oauth"
)

// OAuthHandler drives the provider connect/callback handshake.
type OAuthHandler struct {
	cfg       *config.Config
	codec     *oauthstate.Codec
	verifiers *oauthstate.VerifierStore
	flow      *connector.OAuthFlow
	vault     *tokenvault.Vault
	logger    *zap.Logger
}

// NewOAuthHandler creates an OAuth handler.
func NewOAuthHandler(
	cfg *config.Config,
	codec *oauthstate.Codec,
	verifiers *oauthstate.VerifierStore,
	flow *connector.OAuthFlow,
	vault *tokenvault.Vault,
	logger *zap.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		cfg:       cfg,
		codec:     codec,
		verifiers: verifiers,
		flow:      flow,
		vault:     vault,
		logger:    logger,
	}
}

func (h *OAuthHandler) redirectURI(platform domain.Platform) string {
	return h.cfg.Server.PublicURL + "/api/v1/oauth/" + string(platform) + "/callback"
}

// Connect redirects the browser to the provider consent screen with a signed
// state token, storing a PKCE verifier first where the provider requires one.
func (h *OAuthHandler) Connect(c *gin.Context) {
	platform := domain.Platform(c.Param("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Unknown platform",
			Message: "unsupported platform: " + c.Param("platform"),
		})
		return
	}

	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: "tenant_id query parameter is required",
		})
		return
	}

	state, err := h.codec.Encode(tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to encode oauth state",
		})
		return
	}

	var challenge string
	if connector.UsesPKCE(platform) {
		verifier, err := oauthstate.GenerateVerifier()
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Internal error",
				Message: "failed to generate pkce verifier",
			})
			return
		}
		if err := h.verifiers.Put(c.Request.Context(), state, verifier); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Internal error",
				Message: "failed to store pkce verifier",
			})
			return
		}
		challenge = oauthstate.Challenge(verifier)
	}

	authURL, err := h.flow.AuthorizeURL(platform, h.oauthApp(platform), h.redirectURI(platform), state, challenge)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to build authorize url",
		})
		return
	}

	c.SetCookie(stateCookieName, state, stateCookieMaxAge, stateCookiePath, "", true, true)
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the handshake: verifies the state against the cookie,
// exchanges the code, resolves the provider-side account and stores the
// encrypted tokens. Every outcome ends in a dashboard redirect.
func (h *OAuthHandler) Callback(c *gin.Context) {
	platform := domain.Platform(c.Param("platform"))
	if !platform.Valid() {
		h.dashboardRedirect(c, "error", "unknown_platform")
		return
	}

	// The provider reported denial or failure; nothing to exchange.
	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Info("oauth callback carried provider error",
			zap.String("platform", string(platform)),
			zap.String("provider_error", providerErr),
		)
		h.dashboardRedirect(c, "error", providerErr)
		return
	}

	state := c.Query("state")
	cookieState, err := c.Cookie(stateCookieName)
	if err != nil || state == "" || state != cookieState {
		h.dashboardRedirect(c, "error", "state_mismatch")
		return
	}
	c.SetCookie(stateCookieName, "", -1, stateCookiePath, "", true, true)

	decoded, err := h.codec.Decode(state)
	if err != nil {
		reason := "invalid_state"
		if errors.Is(err, oauthstate.ErrStateExpired) {
			reason = "state_expired"
		}
		h.dashboardRedirect(c, "error", reason)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.dashboardRedirect(c, "error", "missing_code")
		return
	}

	var verifier string
	if connector.UsesPKCE(platform) {
		verifier, err = h.verifiers.Take(c.Request.Context(), state)
		if err != nil {
			h.dashboardRedirect(c, "error", "verifier_missing")
			return
		}
	}

	tokens, err := h.flow.Exchange(c.Request.Context(), platform, h.oauthApp(platform), h.redirectURI(platform), code, verifier)
	if err != nil {
		h.logger.Warn("oauth code exchange failed",
			zap.String("platform", string(platform)),
			zap.String("tenant_id", decoded.TenantID),
			zap.Error(err),
		)
		h.dashboardRedirect(c, "error", "exchange_failed")
		return
	}

	externalID := tokens.ExternalAccountID
	accountName := ""
	if externalID == "" {
		externalID, accountName, err = h.flow.ResolveAccount(c.Request.Context(), platform, tokens.AccessToken)
		if err != nil || externalID == "" {
			h.logger.Warn("failed to resolve connected account",
				zap.String("platform", string(platform)),
				zap.Error(err),
			)
			h.dashboardRedirect(c, "error", "account_resolution_failed")
			return
		}
	}

	account := &domain.SocialAccount{
		TenantID:          decoded.TenantID,
		Platform:          platform,
		ExternalAccountID: externalID,
		AccountName:       accountName,
	}
	if err := h.vault.ConnectAccount(c.Request.Context(), account, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		h.logger.Error("failed to store connected account",
			zap.String("platform", string(platform)),
			zap.String("tenant_id", decoded.TenantID),
			zap.Error(err),
		)
		h.dashboardRedirect(c, "error", "storage_failed")
		return
	}

	h.logger.Info("account connected",
		zap.String("platform", string(platform)),
		zap.String("tenant_id", decoded.TenantID),
		zap.String("account_id", account.ID),
	)
	h.dashboardRedirect(c, "connected", string(platform))
}

func (h *OAuthHandler) oauthApp(platform domain.Platform) connector.OAuthApp {
	client := h.cfg.OAuth.Client(string(platform))
	return connector.OAuthApp{ClientID: client.ClientID, ClientSecret: client.ClientSecret}
}

func (h *OAuthHandler) dashboardRedirect(c *gin.Context, key, value string) {
	c.Redirect(http.StatusFound, h.cfg.Server.DashboardURL+"?"+key+"="+url.QueryEscape(value))
}
