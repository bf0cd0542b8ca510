package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/karti/auctionhouse/internal/domain"
)

// writeError maps a domain.Error's Kind to an HTTP status once, at the
// boundary (spec §7 propagation), falling back to 500 for anything that
// isn't a recognized domain error.
func writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch derr.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindTransient:
		status = http.StatusServiceUnavailable
	case domain.KindInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": derr.Message})
}

func domainUnauthorized(msg string) error { return domain.Unauthorized(msg) }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
