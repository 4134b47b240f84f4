package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/pkg/database"
)

// syncRunRepository implements SyncRunRepository interface
type syncRunRepository struct {
	db *database.Postgres
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *database.Postgres) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, tenant_id, social_account_id, platform, status, error, daily_count, post_count, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = domain.SyncStatusRunning
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		run.ID, run.TenantID, run.SocialAccountID, run.Platform,
		run.Status, run.Error, run.DailyCount, run.PostCount, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	return nil
}

func (r *syncRunRepository) Finish(ctx context.Context, id string, status domain.SyncStatus, errText string, dailyCount, postCount int) error {
	query := `
		UPDATE sync_runs
		SET status = $2, error = $3, daily_count = $4, post_count = $5, finished_at = $6
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, id, status, errText, dailyCount, postCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sync run with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

func (r *syncRunRepository) ListLatestByTenant(ctx context.Context, tenantID string) ([]domain.SyncRun, error) {
	query := `
		SELECT DISTINCT ON (social_account_id)
			id, tenant_id, social_account_id, platform, status, error, daily_count, post_count, started_at, finished_at
		FROM sync_runs
		WHERE tenant_id = $1
		ORDER BY social_account_id, started_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		var finishedAt sql.NullTime

		err := rows.Scan(
			&run.ID, &run.TenantID, &run.SocialAccountID, &run.Platform,
			&run.Status, &run.Error, &run.DailyCount, &run.PostCount,
			&run.StartedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}

	return runs, nil
}
