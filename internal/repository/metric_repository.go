package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/pkg/database"
)

// dailyMetricRepository implements DailyMetricRepository interface
type dailyMetricRepository struct {
	db *database.Postgres
}

// NewDailyMetricRepository creates a new daily metric repository
func NewDailyMetricRepository(db *database.Postgres) DailyMetricRepository {
	return &dailyMetricRepository{db: db}
}

// UpsertBatch writes metrics one row at a time inside a transaction. COALESCE
// on the update side keeps previously synced columns when a later sync has no
// value for them, which makes re-syncs idempotent and order-independent.
func (r *dailyMetricRepository) UpsertBatch(ctx context.Context, metrics []domain.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO daily_metrics (tenant_id, platform, social_account_id, date,
			followers, impressions, reach, engagements, likes, comments, shares,
			saves, views, watch_time_sec, posts_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, platform, social_account_id, date) DO UPDATE SET
			followers = COALESCE(EXCLUDED.followers, daily_metrics.followers),
			impressions = COALESCE(EXCLUDED.impressions, daily_metrics.impressions),
			reach = COALESCE(EXCLUDED.reach, daily_metrics.reach),
			engagements = COALESCE(EXCLUDED.engagements, daily_metrics.engagements),
			likes = COALESCE(EXCLUDED.likes, daily_metrics.likes),
			comments = COALESCE(EXCLUDED.comments, daily_metrics.comments),
			shares = COALESCE(EXCLUDED.shares, daily_metrics.shares),
			saves = COALESCE(EXCLUDED.saves, daily_metrics.saves),
			views = COALESCE(EXCLUDED.views, daily_metrics.views),
			watch_time_sec = COALESCE(EXCLUDED.watch_time_sec, daily_metrics.watch_time_sec),
			posts_count = COALESCE(EXCLUDED.posts_count, daily_metrics.posts_count)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare daily metric upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		_, err := stmt.ExecContext(ctx,
			m.TenantID, m.Platform, m.SocialAccountID, m.Date,
			m.Followers, m.Impressions, m.Reach, m.Engagements,
			m.Likes, m.Comments, m.Shares, m.Saves,
			m.Views, m.WatchTimeSec, m.PostsCount,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert daily metric for %s: %w", m.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily metrics: %w", err)
	}

	return nil
}

func (r *dailyMetricRepository) ListByAccount(ctx context.Context, tenantID, socialAccountID string, since time.Time) ([]domain.DailyMetric, error) {
	query := `
		SELECT tenant_id, platform, social_account_id, date,
			followers, impressions, reach, engagements, likes, comments, shares,
			saves, views, watch_time_sec, posts_count
		FROM daily_metrics
		WHERE tenant_id = $1 AND social_account_id = $2 AND date >= $3
		ORDER BY date
	`

	rows, err := r.db.DB.QueryContext(ctx, query, tenantID, socialAccountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.DailyMetric
	for rows.Next() {
		var m domain.DailyMetric
		err := rows.Scan(
			&m.TenantID, &m.Platform, &m.SocialAccountID, &m.Date,
			&m.Followers, &m.Impressions, &m.Reach, &m.Engagements,
			&m.Likes, &m.Comments, &m.Shares, &m.Saves,
			&m.Views, &m.WatchTimeSec, &m.PostsCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily metrics: %w", err)
	}

	return metrics, nil
}

// postMetricRepository implements PostMetricRepository interface
type postMetricRepository struct {
	db *database.Postgres
}

// NewPostMetricRepository creates a new post metric repository
func NewPostMetricRepository(db *database.Postgres) PostMetricRepository {
	return &postMetricRepository{db: db}
}

func (r *postMetricRepository) UpsertBatch(ctx context.Context, posts []domain.PostMetric) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO post_metrics (tenant_id, platform, social_account_id, external_post_id,
			posted_at, caption, media_type, url, thumbnail_url, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, platform, external_post_id) DO UPDATE SET
			posted_at = EXCLUDED.posted_at,
			caption = EXCLUDED.caption,
			media_type = EXCLUDED.media_type,
			url = EXCLUDED.url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			metrics = EXCLUDED.metrics
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare post metric upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		metricsJSON, err := json.Marshal(p.Metrics)
		if err != nil {
			return fmt.Errorf("failed to encode metrics for post %s: %w", p.ExternalPostID, err)
		}

		_, err = stmt.ExecContext(ctx,
			p.TenantID, p.Platform, p.SocialAccountID, p.ExternalPostID,
			p.PostedAt, p.Caption, p.MediaType, p.URL, p.ThumbnailURL, metricsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert post metric %s: %w", p.ExternalPostID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit post metrics: %w", err)
	}

	return nil
}

func (r *postMetricRepository) ListByTenant(ctx context.Context, tenantID string, since time.Time) ([]domain.PostMetric, error) {
	query := `
		SELECT tenant_id, platform, social_account_id, external_post_id,
			posted_at, caption, media_type, url, thumbnail_url, metrics
		FROM post_metrics
		WHERE tenant_id = $1 AND posted_at >= $2
		ORDER BY posted_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list post metrics: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostMetric
	for rows.Next() {
		var p domain.PostMetric
		var metricsJSON []byte
		var caption, mediaType, url, thumbnailURL sql.NullString

		err := rows.Scan(
			&p.TenantID, &p.Platform, &p.SocialAccountID, &p.ExternalPostID,
			&p.PostedAt, &caption, &mediaType, &url, &thumbnailURL, &metricsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post metric: %w", err)
		}

		p.Caption = caption.String
		p.MediaType = mediaType.String
		p.URL = url.String
		p.ThumbnailURL = thumbnailURL.String

		if len(metricsJSON) > 0 {
			if err := json.Unmarshal(metricsJSON, &p.Metrics); err != nil {
				return nil, fmt.Errorf("failed to decode metrics for post %s: %w", p.ExternalPostID, err)
			}
		}

		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post metrics: %w", err)
	}

	return posts, nil
}
