package oauthstate

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsoria/social-sync/internal/store"
)

const testSecret = "state-signing-secret-for-tests-0123456789"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)

	encoded, err := codec.Encode("tenant-1")
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	state, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", state.TenantID)
	assert.NotEmpty(t, state.Nonce)
	assert.WithinDuration(t, time.Now(), state.IssuedAt, 5*time.Second)
}

func TestEncodeRejectsEmptyTenant(t *testing.T) {
	_, err := NewCodec(testSecret).Encode("")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestDecodeExpiredState(t *testing.T) {
	// Forge a token issued two hours ago with the right secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": "tenant-1",
		"iat":       time.Now().Add(-2 * time.Hour).Unix(),
		"nonce":     "n",
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewCodec(testSecret).Decode(signed)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestDecodeTamperedState(t *testing.T) {
	codec := NewCodec(testSecret)

	encoded, err := codec.Encode("tenant-1")
	require.NoError(t, err)

	_, err = codec.Decode(encoded + "x")
	assert.ErrorIs(t, err, ErrStateInvalid)

	_, err = NewCodec("a-completely-different-signing-secret-----").Decode(encoded)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestDecodeStateWithoutTenant(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat":   time.Now().Unix(),
		"nonce": "n",
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewCodec(testSecret).Decode(signed)
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestVerifierConsumedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	vs := NewVerifierStore(store.NewMemory())

	require.NoError(t, vs.Put(ctx, "state-1", "verifier-1"))

	got, err := vs.Take(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-1", got)

	_, err = vs.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrVerifierNotFound)
}

func TestVerifierExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	vs := NewVerifierStore(store.NewMemoryWithClock(func() time.Time { return now }))

	require.NoError(t, vs.Put(ctx, "state-1", "verifier-1"))

	now = now.Add(11 * time.Minute)

	_, err := vs.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrVerifierNotFound)
}

func TestChallengeIsDeterministic(t *testing.T) {
	v, err := GenerateVerifier()
	require.NoError(t, err)
	assert.NotEmpty(t, v)

	assert.Equal(t, Challenge(v), Challenge(v))
	assert.NotEqual(t, v, Challenge(v))
}
