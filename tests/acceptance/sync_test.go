package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
)

func (s *Suite) seedAccount(tenantID string, platform domain.Platform, externalID string) *domain.SocialAccount {
	account := &domain.SocialAccount{
		TenantID:          tenantID,
		Platform:          platform,
		ExternalAccountID: externalID,
		AccountName:       "Test Account",
		AuthStatus:        domain.AuthStatusActive,
	}
	err := s.Repositories.SocialAccount.Upsert(context.Background(), account)
	s.Require().NoError(err)
	return account
}

func (s *Suite) TestSyncRunEmptyTenant() {
	body := bytes.NewBufferString(`{"tenant_id":"tenant-empty"}`)
	resp, err := http.Post(s.BaseURL+"/api/v1/sync/run", "application/json", body)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var parsed struct {
		Summary struct {
			Total     int `json:"total"`
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
		} `json:"summary"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&parsed))
	s.Equal(0, parsed.Summary.Total)
}

func (s *Suite) TestSyncRunRequiresTenant() {
	resp, err := http.Post(s.BaseURL+"/api/v1/sync/run", "application/json", bytes.NewBufferString(`{}`))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestSyncStatusListsLatestRunPerAccount() {
	account := s.seedAccount("tenant-1", domain.PlatformTikTok, "tt-123")

	ctx := context.Background()
	older := &domain.SyncRun{
		TenantID:        "tenant-1",
		SocialAccountID: account.ID,
		Platform:        account.Platform,
		Status:          domain.SyncStatusRunning,
		StartedAt:       time.Now().Add(-time.Hour),
	}
	s.Require().NoError(s.Repositories.SyncRun.Create(ctx, older))
	s.Require().NoError(s.Repositories.SyncRun.Finish(ctx, older.ID, domain.SyncStatusFailed, "provider timeout", 0, 0))

	newer := &domain.SyncRun{
		TenantID:        "tenant-1",
		SocialAccountID: account.ID,
		Platform:        account.Platform,
		Status:          domain.SyncStatusRunning,
		StartedAt:       time.Now(),
	}
	s.Require().NoError(s.Repositories.SyncRun.Create(ctx, newer))
	s.Require().NoError(s.Repositories.SyncRun.Finish(ctx, newer.ID, domain.SyncStatusSuccess, "", 7, 12))

	resp, err := http.Get(s.BaseURL + "/api/v1/sync/status?tenant_id=tenant-1")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var parsed struct {
		Runs []domain.SyncRun `json:"runs"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&parsed))
	s.Require().Len(parsed.Runs, 1, "expected only the latest run per account")
	s.Equal(domain.SyncStatusSuccess, parsed.Runs[0].Status)
	s.Equal(7, parsed.Runs[0].DailyCount)
	s.Equal(12, parsed.Runs[0].PostCount)
}

func (s *Suite) TestSyncStatusRequiresTenant() {
	resp, err := http.Get(s.BaseURL + "/api/v1/sync/status")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
