package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
)

func TestWriteError_MapsDomainKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", domain.Validation("bad input"), http.StatusBadRequest},
		{"unauthorized", domain.Unauthorized("no token"), http.StatusUnauthorized},
		{"forbidden", domain.Forbidden("not the host"), http.StatusForbidden},
		{"not_found", domain.NotFound("no such auction"), http.StatusNotFound},
		{"conflict", domain.Conflict("auction has closed"), http.StatusConflict},
		{"transient", domain.Transient("redis unavailable", nil), http.StatusServiceUnavailable},
		{"internal", domain.Internal("invariant violated", nil), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("handler: %w", domain.ErrAuctionClosed), http.StatusConflict},
		{"unrecognized", fmt.Errorf("some raw error"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["id"])
}
