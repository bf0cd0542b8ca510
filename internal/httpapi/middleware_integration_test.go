package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/identity"
	"github.com/karti/auctionhouse/internal/storetest"
)

func TestRequireAuth_AttachesUserIDAndUsernameToContext(t *testing.T) {
	s := storetest.NewStore(t)
	require.NoError(t, s.CreateUser(context.Background(), domain.User{
		ID: "u1", Email: "alice@example.com", Username: "alice", IsVerified: true,
	}, "hash"))

	issuer := identity.NewIssuer("test-secret", time.Hour)
	verifier := identity.NewHMACVerifier("test-secret")
	a := &API{store: s, verifier: verifier}

	token, err := issuer.Sign("u1")
	require.NoError(t, err)

	var gotUserID string
	var gotUsername string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = userIDFromContext(r.Context())
		gotUsername = usernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/bids", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.requireAuth(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", gotUserID)
	assert.Equal(t, "alice", gotUsername)
}

func TestRequireAuth_RejectsMissingAuthorizationHeader(t *testing.T) {
	a := &API{verifier: identity.NewHMACVerifier("test-secret")}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/bids", nil)
	rec := httptest.NewRecorder()
	a.requireAuth(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called, "the handler chain must not run without a valid token")
}

func TestRequireAuth_RejectsInvalidToken(t *testing.T) {
	a := &API{verifier: identity.NewHMACVerifier("test-secret")}

	req := httptest.NewRequest(http.MethodGet, "/bids", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	a.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
