package oauthstate

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pulsoria/social-sync/internal/store"
)

// verifierTTL bounds how long a PKCE verifier waits for its callback.
const verifierTTL = 10 * time.Minute

// ErrVerifierNotFound is returned when a PKCE verifier is absent, expired, or
// already consumed. A second Take for the same state failing with this error
// is the replay prevention working as intended.
var ErrVerifierNotFound = errors.New("pkce verifier not found")

// VerifierStore holds PKCE code verifiers keyed by state for the providers
// that require PKCE (TikTok, Twitter). Verifiers are consumed exactly once.
type VerifierStore struct {
	store store.Store
}

// NewVerifierStore creates a verifier store.
func NewVerifierStore(s store.Store) *VerifierStore {
	return &VerifierStore{store: s}
}

func verifierKey(state string) string {
	return "pkce:" + state
}

// Put stores verifier for state with a 10-minute TTL.
func (v *VerifierStore) Put(ctx context.Context, state, verifier string) error {
	if err := v.store.Set(ctx, verifierKey(state), verifier, verifierTTL); err != nil {
		return fmt.Errorf("failed to store pkce verifier: %w", err)
	}
	return nil
}

// Take returns the verifier for state and deletes it in the same step.
func (v *VerifierStore) Take(ctx context.Context, state string) (string, error) {
	verifier, err := v.store.Take(ctx, verifierKey(state))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrVerifierNotFound
		}
		return "", fmt.Errorf("failed to take pkce verifier: %w", err)
	}
	return verifier, nil
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate pkce verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Challenge returns the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
