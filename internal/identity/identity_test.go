package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerAndVerifier_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	verifier := NewHMACVerifier("test-secret")

	token, err := issuer.Sign("user-123")
	require.NoError(t, err)

	claims, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Minute)
	verifier := NewHMACVerifier("test-secret")

	token, err := issuer.Sign("user-123")
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("correct-secret", time.Hour)
	verifier := NewHMACVerifier("different-secret")

	token, err := issuer.Sign("user-123")
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerifier_RejectsMalformedToken(t *testing.T) {
	verifier := NewHMACVerifier("test-secret")
	_, err := verifier.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	_, err = BearerToken("")
	assert.Error(t, err)

	_, err = BearerToken("Basic abc123")
	assert.Error(t, err)
}

func TestPasswordHashing_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, ComparePassword(hash, "correct-horse-battery-staple"))
	assert.Error(t, ComparePassword(hash, "wrong-password"))
}
