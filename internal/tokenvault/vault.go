package tokenvault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/config"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/repository"
)

// refreshBuffer refreshes tokens slightly before their stated expiry so a
// sync never starts with a token that dies mid-run.
const refreshBuffer = 5 * time.Minute

var (
	// ErrNoRefreshToken is returned when an expiring account has no
	// refresh token to renew with.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrRefreshFailed wraps a failed refresh grant. The account has been
	// marked expired and needs a fresh OAuth handshake.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Tokens is a decrypted token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Vault owns encrypted token storage and the per-provider refresh lifecycle.
type Vault struct {
	accounts repository.SocialAccountRepository
	cipher   *Cipher
	executor *apiclient.Executor
	oauth    config.OAuthConfig
	logger   *zap.Logger

	// endpoints are the provider token/introspection URLs, swappable in
	// tests.
	endpoints map[domain.Platform]string

	// refreshMu serializes refreshes per account: concurrent syncs must
	// not race two refresh grants for the same refresh token.
	mu        sync.Mutex
	refreshMu map[string]*sync.Mutex
}

// NewVault creates a token vault.
func NewVault(
	accounts repository.SocialAccountRepository,
	cipher *Cipher,
	executor *apiclient.Executor,
	oauth config.OAuthConfig,
	logger *zap.Logger,
) *Vault {
	endpoints := make(map[domain.Platform]string, len(defaultEndpoints))
	for platform, url := range defaultEndpoints {
		endpoints[platform] = url
	}
	return &Vault{
		accounts:  accounts,
		cipher:    cipher,
		executor:  executor,
		oauth:     oauth,
		logger:    logger,
		endpoints: endpoints,
		refreshMu: make(map[string]*sync.Mutex),
	}
}

// SetEndpoint overrides a provider token endpoint. Intended for tests.
func (v *Vault) SetEndpoint(platform domain.Platform, url string) {
	v.endpoints[platform] = url
}

// TokenNeedsRefresh reports whether a token expiring at expiresAt should be
// refreshed now. A nil expiry never needs refresh (long-lived page tokens).
func TokenNeedsRefresh(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return time.Until(*expiresAt) < refreshBuffer
}

// DecryptedTokens loads and decrypts the stored tokens for an account.
func (v *Vault) DecryptedTokens(ctx context.Context, accountID string) (*Tokens, error) {
	account, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return v.decrypt(account)
}

func (v *Vault) decrypt(account *domain.SocialAccount) (*Tokens, error) {
	accessToken, err := v.cipher.Decrypt(account.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for account %s: %w", account.ID, err)
	}

	refreshToken, err := v.cipher.Decrypt(account.RefreshTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token for account %s: %w", account.ID, err)
	}

	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    account.TokenExpiresAt,
	}, nil
}

// UpdateStoredTokens encrypts and stores a token pair with its expiry in one
// repository call, so the access token and expiry can never diverge.
func (v *Vault) UpdateStoredTokens(ctx context.Context, accountID, accessToken, refreshToken string, expiresAt *time.Time) error {
	accessEnc, err := v.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	refreshEnc, err := v.cipher.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	return v.accounts.UpdateTokens(ctx, accountID, accessEnc, refreshEnc, expiresAt)
}

// ConnectAccount encrypts a freshly issued token pair and upserts the
// account row, reactivating it if a prior connection had expired.
func (v *Vault) ConnectAccount(ctx context.Context, account *domain.SocialAccount, accessToken, refreshToken string, expiresAt *time.Time) error {
	accessEnc, err := v.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	refreshEnc, err := v.cipher.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	account.AccessTokenEnc = accessEnc
	account.RefreshTokenEnc = refreshEnc
	account.TokenExpiresAt = expiresAt
	account.AuthStatus = domain.AuthStatusActive

	return v.accounts.Upsert(ctx, account)
}

// MarkAccountExpired transitions the account to expired. It leaves the stored
// tokens in place for debugging; the account is excluded from refresh sweeps
// until reconnected.
func (v *Vault) MarkAccountExpired(ctx context.Context, accountID, reason string) error {
	v.logger.Warn("marking account expired",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
	)
	return v.accounts.UpdateAuthStatus(ctx, accountID, domain.AuthStatusExpired)
}

// ValidAccessToken returns a usable access token for the account, refreshing
// (or, for Meta, validating) it first when needed. A failed refresh marks the
// account expired and returns ErrRefreshFailed.
func (v *Vault) ValidAccessToken(ctx context.Context, accountID string) (string, error) {
	mu := v.accountMutex(accountID)
	mu.Lock()
	defer mu.Unlock()

	account, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	tokens, err := v.decrypt(account)
	if err != nil {
		return "", err
	}

	if tokens.AccessToken == "" {
		return "", fmt.Errorf("account %s has no access token", accountID)
	}

	if account.Platform.SelfValidating() {
		if err := v.validateMetaToken(ctx, account, tokens.AccessToken); err != nil {
			return "", err
		}
		return tokens.AccessToken, nil
	}

	if !TokenNeedsRefresh(tokens.ExpiresAt) {
		return tokens.AccessToken, nil
	}

	return v.refreshLocked(ctx, account, tokens)
}

// RefreshAccount refreshes an account's token regardless of how close to
// expiry it is. Used by the sweep, which renews tokens a day ahead.
func (v *Vault) RefreshAccount(ctx context.Context, accountID string) (string, error) {
	mu := v.accountMutex(accountID)
	mu.Lock()
	defer mu.Unlock()

	account, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	tokens, err := v.decrypt(account)
	if err != nil {
		return "", err
	}

	return v.refreshLocked(ctx, account, tokens)
}

// refreshLocked runs the refresh grant and persists the result. Callers hold
// the account mutex.
func (v *Vault) refreshLocked(ctx context.Context, account *domain.SocialAccount, tokens *Tokens) (string, error) {
	refreshed, err := v.refresh(ctx, account, tokens)
	if err != nil {
		if markErr := v.MarkAccountExpired(ctx, account.ID, err.Error()); markErr != nil {
			v.logger.Error("failed to mark account expired", zap.String("account_id", account.ID), zap.Error(markErr))
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := v.UpdateStoredTokens(ctx, account.ID, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	v.logger.Info("refreshed provider token",
		zap.String("account_id", account.ID),
		zap.String("platform", string(account.Platform)),
	)

	return refreshed.AccessToken, nil
}

func (v *Vault) accountMutex(accountID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()

	mu, ok := v.refreshMu[accountID]
	if !ok {
		mu = &sync.Mutex{}
		v.refreshMu[accountID] = mu
	}
	return mu
}
