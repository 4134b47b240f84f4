package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/pkg/database"
)

// socialAccountRepository implements SocialAccountRepository interface
type socialAccountRepository struct {
	db *database.Postgres
}

// NewSocialAccountRepository creates a new social account repository
func NewSocialAccountRepository(db *database.Postgres) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `
	id, tenant_id, platform, external_account_id, account_name,
	access_token_enc, refresh_token_enc, token_expires_at, auth_status,
	created_at, updated_at
`

func (r *socialAccountRepository) Upsert(ctx context.Context, account *domain.SocialAccount) error {
	query := `
		INSERT INTO social_accounts (id, tenant_id, platform, external_account_id, account_name,
			access_token_enc, refresh_token_enc, token_expires_at, auth_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, platform, external_account_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			token_expires_at = EXCLUDED.token_expires_at,
			auth_status = EXCLUDED.auth_status,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	err := r.db.DB.QueryRowContext(ctx, query,
		account.ID,
		account.TenantID,
		account.Platform,
		account.ExternalAccountID,
		account.AccountName,
		account.AccessTokenEnc,
		account.RefreshTokenEnc,
		account.TokenExpiresAt,
		account.AuthStatus,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("account %s/%s for tenant %s: %w",
					account.Platform, account.ExternalAccountID, account.TenantID, ErrDuplicateAccount)
			}
		}
		return fmt.Errorf("failed to upsert social account: %w", err)
	}

	return nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id string) (*domain.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE id = $1`

	account, err := r.scanOne(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("social account with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get social account by id: %w", err)
	}

	return account, nil
}

func (r *socialAccountRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.SocialAccount, error) {
	query := `
		SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE tenant_id = $1
		ORDER BY platform, external_account_id
	`

	rows, err := r.db.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list social accounts: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *socialAccountRepository) ListActive(ctx context.Context) ([]*domain.SocialAccount, error) {
	query := `
		SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE auth_status = $1
		ORDER BY tenant_id, platform, external_account_id
	`

	rows, err := r.db.DB.QueryContext(ctx, query, domain.AuthStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active social accounts: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *socialAccountRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time, exclude []domain.Platform) ([]*domain.SocialAccount, error) {
	excluded := make([]string, len(exclude))
	for i, p := range exclude {
		excluded[i] = string(p)
	}

	query := `
		SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE auth_status = $1
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at < $2
		  AND platform <> ALL($3)
		ORDER BY token_expires_at
	`

	rows, err := r.db.DB.QueryContext(ctx, query, domain.AuthStatusActive, cutoff, pq.Array(excluded))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring social accounts: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *socialAccountRepository) UpdateTokens(ctx context.Context, id string, accessTokenEnc, refreshTokenEnc []byte, expiresAt *time.Time) error {
	query := `
		UPDATE social_accounts
		SET access_token_enc = $2,
		    refresh_token_enc = COALESCE($3, refresh_token_enc),
		    token_expires_at = $4,
		    auth_status = $5,
		    updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, id, accessTokenEnc, refreshTokenEnc, expiresAt, domain.AuthStatusActive, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	return requireRow(result, id)
}

func (r *socialAccountRepository) UpdateAuthStatus(ctx context.Context, id string, status domain.AuthStatus) error {
	query := `
		UPDATE social_accounts
		SET auth_status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update auth status: %w", err)
	}

	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("social account with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *socialAccountRepository) scanOne(row rowScanner) (*domain.SocialAccount, error) {
	account := &domain.SocialAccount{}
	var expiresAt sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.TenantID,
		&account.Platform,
		&account.ExternalAccountID,
		&account.AccountName,
		&account.AccessTokenEnc,
		&account.RefreshTokenEnc,
		&expiresAt,
		&account.AuthStatus,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		account.TokenExpiresAt = &expiresAt.Time
	}

	return account, nil
}

func (r *socialAccountRepository) scanAll(rows *sql.Rows) ([]*domain.SocialAccount, error) {
	var accounts []*domain.SocialAccount
	for rows.Next() {
		account, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan social account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate social accounts: %w", err)
	}
	return accounts, nil
}
