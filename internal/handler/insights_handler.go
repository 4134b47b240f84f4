package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/insights"
	"github.com/pulsoria/social-sync/internal/repository"
)

const (
	defaultTopPostsLimit = 10
	maxTopPostsLimit     = 100
	postLookback         = 30 * 24 * time.Hour
	trendLookback        = 90 * 24 * time.Hour
)

// InsightsHandler serves the read-time analytics endpoints over persisted
// canonical records.
type InsightsHandler struct {
	accounts repository.SocialAccountRepository
	daily    repository.DailyMetricRepository
	posts    repository.PostMetricRepository
	logger   *zap.Logger
}

// NewInsightsHandler creates an insights handler.
func NewInsightsHandler(
	accounts repository.SocialAccountRepository,
	daily repository.DailyMetricRepository,
	posts repository.PostMetricRepository,
	logger *zap.Logger,
) *InsightsHandler {
	return &InsightsHandler{
		accounts: accounts,
		daily:    daily,
		posts:    posts,
		logger:   logger,
	}
}

// TopPosts returns a tenant's best recent posts, deduplicated and ranked.
func (h *InsightsHandler) TopPosts(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: "tenant_id query parameter is required",
		})
		return
	}

	limit := defaultTopPostsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxTopPostsLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Message: "limit must be between 1 and 100",
			})
			return
		}
		limit = parsed
	}

	posts, err := h.posts.ListByTenant(c.Request.Context(), tenantID, time.Now().Add(-postLookback))
	if err != nil {
		h.logger.Error("failed to list posts", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to list posts",
		})
		return
	}

	c.JSON(http.StatusOK, TopPostsResponse{Posts: insights.TopPosts(posts, limit)})
}

// FollowerTrend returns each matching account's reconstructed cumulative
// follower series.
func (h *InsightsHandler) FollowerTrend(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: "tenant_id query parameter is required",
		})
		return
	}

	platform := domain.Platform(c.Query("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: "platform query parameter is required",
		})
		return
	}

	var baseline int64
	if raw := c.Query("baseline"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Message: "baseline must be a non-negative integer",
			})
			return
		}
		baseline = parsed
	}

	accounts, err := h.accounts.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list accounts", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to list accounts",
		})
		return
	}

	since := time.Now().Add(-trendLookback)
	response := FollowerTrendResponse{Platform: platform, Trends: []AccountTrend{}}
	for _, account := range accounts {
		if account.Platform != platform {
			continue
		}

		metrics, err := h.daily.ListByAccount(c.Request.Context(), tenantID, account.ID, since)
		if err != nil {
			h.logger.Error("failed to list daily metrics",
				zap.String("tenant_id", tenantID),
				zap.String("account_id", account.ID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Internal error",
				Message: "failed to list daily metrics",
			})
			return
		}

		response.Trends = append(response.Trends, AccountTrend{
			SocialAccountID: account.ID,
			AccountName:     account.AccountName,
			Points:          insights.FollowerTrend(metrics, baseline),
		})
	}

	c.JSON(http.StatusOK, response)
}
