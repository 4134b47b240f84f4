package domain

import "time"

// SyncStatus is the user-visible state of one account's sync attempt.
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncRun records one sync attempt for one account. Failures carry the error
// text so operators see a status row instead of a raw exception.
type SyncRun struct {
	ID              string     `json:"id" db:"id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	SocialAccountID string     `json:"social_account_id" db:"social_account_id"`
	Platform        Platform   `json:"platform" db:"platform"`
	Status          SyncStatus `json:"status" db:"status"`
	Error           string     `json:"error,omitempty" db:"error"`
	DailyCount      int        `json:"daily_count" db:"daily_count"`
	PostCount       int        `json:"post_count" db:"post_count"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
}
