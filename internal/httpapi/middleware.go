package httpapi

import (
	"context"
	"net/http"

	"github.com/karti/auctionhouse/internal/identity"
)

type ctxKey string

const userIDKey ctxKey = "userID"
const usernameKey ctxKey = "username"

// requireAuth validates the bearer token and stores identity.Claims-derived
// values in the request context, following the teacher's RequireAuth
// middleware generalized to depend on an identity.Verifier rather than
// reading JWT_SECRET directly.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := identity.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, domainUnauthorized(err.Error()))
			return
		}
		claims, err := a.verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			writeError(w, err)
			return
		}

		u, err := a.store.GetUserByID(r.Context(), claims.UserID)
		username := ""
		if err == nil {
			username = u.Username
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

func usernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(usernameKey).(string)
	return name
}
