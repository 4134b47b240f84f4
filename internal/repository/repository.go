package repository

import (
	"github.com/pulsoria/social-sync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	SocialAccount SocialAccountRepository
	DailyMetric   DailyMetricRepository
	PostMetric    PostMetricRepository
	SyncRun       SyncRunRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		SocialAccount: NewSocialAccountRepository(db),
		DailyMetric:   NewDailyMetricRepository(db),
		PostMetric:    NewPostMetricRepository(db),
		SyncRun:       NewSyncRunRepository(db),
	}
}
