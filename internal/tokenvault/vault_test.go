package tokenvault

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pulsoria/social-sync/internal/apiclient"
	"github.com/pulsoria/social-sync/internal/config"
	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/ratelimit"
	"github.com/pulsoria/social-sync/internal/repository"
	"github.com/pulsoria/social-sync/internal/store"
)

const testKeyHex = "6368616e676520746869732070617373776f726420746f206120736563726574"

// fakeAccountRepo is an in-memory SocialAccountRepository.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.SocialAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.SocialAccount)}
}

func (f *fakeAccountRepo) Upsert(ctx context.Context, account *domain.SocialAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == "" {
		account.ID = fmt.Sprintf("acc-%d", len(f.accounts)+1)
	}
	copied := *account
	f.accounts[account.ID] = &copied
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SocialAccount
	for _, account := range f.accounts {
		if account.TenantID == tenantID {
			copied := *account
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) ListActive(ctx context.Context) ([]*domain.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SocialAccount
	for _, account := range f.accounts {
		if account.AuthStatus == domain.AuthStatusActive {
			copied := *account
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time, exclude []domain.Platform) ([]*domain.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[domain.Platform]bool)
	for _, p := range exclude {
		excluded[p] = true
	}
	var out []*domain.SocialAccount
	for _, account := range f.accounts {
		if account.AuthStatus != domain.AuthStatusActive || excluded[account.Platform] {
			continue
		}
		if account.TokenExpiresAt != nil && account.TokenExpiresAt.Before(cutoff) {
			copied := *account
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) UpdateTokens(ctx context.Context, id string, accessTokenEnc, refreshTokenEnc []byte, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.AccessTokenEnc = accessTokenEnc
	if refreshTokenEnc != nil {
		account.RefreshTokenEnc = refreshTokenEnc
	}
	account.TokenExpiresAt = expiresAt
	account.AuthStatus = domain.AuthStatusActive
	return nil
}

func (f *fakeAccountRepo) UpdateAuthStatus(ctx context.Context, id string, status domain.AuthStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.AuthStatus = status
	return nil
}

func testVault(t *testing.T, repo repository.SocialAccountRepository) *Vault {
	t.Helper()
	cipher, err := NewCipher(testKeyHex)
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(nil, store.NewMemory(), zaptest.NewLogger(t))
	limiter.SetRetryInterval(time.Millisecond)
	executor := apiclient.NewExecutor(limiter, zaptest.NewLogger(t), 5*time.Second)

	return NewVault(repo, cipher, executor, config.OAuthConfig{
		TikTok: config.OAuthClient{ClientID: "tt-id", ClientSecret: "tt-secret"},
	}, zaptest.NewLogger(t))
}

func seedAccount(t *testing.T, v *Vault, repo *fakeAccountRepo, platform domain.Platform, access, refresh string, expiresAt *time.Time) *domain.SocialAccount {
	t.Helper()
	accessEnc, err := v.cipher.Encrypt(access)
	require.NoError(t, err)
	refreshEnc, err := v.cipher.Encrypt(refresh)
	require.NoError(t, err)

	account := &domain.SocialAccount{
		TenantID:          "tenant-1",
		Platform:          platform,
		ExternalAccountID: "ext-1",
		AccessTokenEnc:    accessEnc,
		RefreshTokenEnc:   refreshEnc,
		TokenExpiresAt:    expiresAt,
		AuthStatus:        domain.AuthStatusActive,
	}
	require.NoError(t, repo.Upsert(context.Background(), account))
	return account
}

func TestTokenNeedsRefresh(t *testing.T) {
	assert.False(t, TokenNeedsRefresh(nil), "nil expiry never needs refresh")

	in4 := time.Now().Add(4 * time.Minute)
	assert.True(t, TokenNeedsRefresh(&in4))

	in10 := time.Now().Add(10 * time.Minute)
	assert.False(t, TokenNeedsRefresh(&in10))
}

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKeyHex)
	require.NoError(t, err)

	enc, err := cipher.Encrypt("secret-token")
	require.NoError(t, err)
	require.NotEmpty(t, enc)

	dec, err := cipher.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", dec)

	// Empty strings stay empty, tampering is detected.
	enc2, err := cipher.Encrypt("")
	require.NoError(t, err)
	assert.Nil(t, enc2)

	enc[len(enc)-1] ^= 0xff
	_, err = cipher.Decrypt(enc)
	assert.Error(t, err)
}

func TestValidAccessTokenFresh(t *testing.T) {
	repo := newFakeAccountRepo()
	v := testVault(t, repo)

	expires := time.Now().Add(time.Hour)
	account := seedAccount(t, v, repo, domain.PlatformTikTok, "fresh-token", "refresh-1", &expires)

	token, err := v.ValidAccessToken(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestValidAccessTokenRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "tt-id", r.PostForm.Get("client_key"))
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":86400}`))
	}))
	defer srv.Close()

	repo := newFakeAccountRepo()
	v := testVault(t, repo)
	v.SetEndpoint(domain.PlatformTikTok, srv.URL)

	expires := time.Now().Add(time.Minute) // inside the 5m refresh buffer
	account := seedAccount(t, v, repo, domain.PlatformTikTok, "stale-token", "refresh-1", &expires)

	token, err := v.ValidAccessToken(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)

	// The stored pair was rotated together with its expiry.
	tokens, err := v.DecryptedTokens(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tokens.AccessToken)
	assert.Equal(t, "new-refresh", tokens.RefreshToken)
	require.NotNil(t, tokens.ExpiresAt)
	assert.True(t, tokens.ExpiresAt.After(time.Now().Add(23*time.Hour)))
}

func TestValidAccessTokenRefreshFailureMarksExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"invalid_grant","message":"Refresh token has been revoked."}}`))
	}))
	defer srv.Close()

	repo := newFakeAccountRepo()
	v := testVault(t, repo)
	v.SetEndpoint(domain.PlatformTikTok, srv.URL)

	expires := time.Now().Add(time.Minute)
	account := seedAccount(t, v, repo, domain.PlatformTikTok, "stale-token", "refresh-1", &expires)

	_, err := v.ValidAccessToken(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrRefreshFailed)

	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusExpired, stored.AuthStatus)
}

func TestValidAccessTokenMissingRefreshToken(t *testing.T) {
	repo := newFakeAccountRepo()
	v := testVault(t, repo)

	expires := time.Now().Add(time.Minute)
	account := seedAccount(t, v, repo, domain.PlatformTikTok, "stale-token", "", &expires)

	_, err := v.ValidAccessToken(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrRefreshFailed)

	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusExpired, stored.AuthStatus)
}

func TestValidAccessTokenValidatesMetaToken(t *testing.T) {
	valid := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "page-token", r.URL.Query().Get("input_token"))
		if valid {
			w.Write([]byte(`{"data":{"is_valid":true}}`))
			return
		}
		w.Write([]byte(`{"data":{"is_valid":false,"error":{"message":"Session has expired"}}}`))
	}))
	defer srv.Close()

	repo := newFakeAccountRepo()
	v := testVault(t, repo)
	v.SetEndpoint(domain.PlatformFacebook, srv.URL)

	// Page tokens carry no expiry and no refresh token.
	account := seedAccount(t, v, repo, domain.PlatformFacebook, "page-token", "", nil)

	token, err := v.ValidAccessToken(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "page-token", token)

	valid = false
	_, err = v.ValidAccessToken(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrRefreshFailed)

	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusExpired, stored.AuthStatus)
}

func TestRefreshAllExpiringTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("refresh_token") == "bad-refresh" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"invalid_grant","message":"revoked"}}`))
			return
		}
		w.Write([]byte(`{"access_token":"swept-access","refresh_token":"swept-refresh","expires_in":3600}`))
	}))
	defer srv.Close()

	repo := newFakeAccountRepo()
	v := testVault(t, repo)
	v.SetEndpoint(domain.PlatformTikTok, srv.URL)

	soon := time.Now().Add(2 * time.Hour)
	good := seedAccount(t, v, repo, domain.PlatformTikTok, "old", "good-refresh", &soon)
	seedAccount(t, v, repo, domain.PlatformTikTok, "old", "bad-refresh", &soon)
	// Meta accounts are excluded from sweeps even with an expiry set.
	seedAccount(t, v, repo, domain.PlatformFacebook, "page-token", "", &soon)

	summary, err := v.RefreshAllExpiringTokens(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Results, 2)

	tokens, err := v.DecryptedTokens(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, "swept-access", tokens.AccessToken)
}
