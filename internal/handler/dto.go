package handler

import (
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/insights"
	"github.com/pulsoria/social-sync/internal/syncer"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SyncRunRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

type SyncRunResponse struct {
	Summary *syncer.BatchSummary `json:"summary"`
}

type SyncStatusResponse struct {
	Runs []domain.SyncRun `json:"runs"`
}

type TopPostsResponse struct {
	Posts []domain.PostMetric `json:"posts"`
}

// AccountTrend is one account's reconstructed follower series.
type AccountTrend struct {
	SocialAccountID string                `json:"social_account_id"`
	AccountName     string                `json:"account_name"`
	Points          []insights.TrendPoint `json:"points"`
}

type FollowerTrendResponse struct {
	Platform domain.Platform `json:"platform"`
	Trends   []AccountTrend  `json:"trends"`
}
