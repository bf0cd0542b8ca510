package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/identity"
)

// register/login stand in for the external identity provider's issuance
// flow (spec §6 names token verification as the boundary; a real deployment
// swaps this out for the provider's own endpoints). Adapted from the
// teacher's handlers/auth.go.

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validation("invalid request body"))
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeError(w, domain.Validation("email, username, and password are required"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, domain.Validation("password must be at least 8 characters"))
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		writeError(w, domain.Internal("hash password", err))
		return
	}

	u := domain.User{ID: uuid.NewString(), Email: req.Email, Username: req.Username, IsVerified: false}
	if req.Name != "" {
		u.Name = &req.Name
	}
	if req.Phone != "" {
		u.Phone = &req.Phone
	}

	if err := a.store.CreateUser(r.Context(), u, hash); err != nil {
		writeError(w, domain.Conflict("email already registered"))
		return
	}

	token, err := a.issuer.Sign(u.ID)
	if err != nil {
		writeError(w, domain.Internal("sign token", err))
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validation("invalid request body"))
		return
	}

	u, hash, err := a.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, domain.Unauthorized("invalid email or password"))
		return
	}
	if err := identity.ComparePassword(hash, req.Password); err != nil {
		writeError(w, err)
		return
	}

	token, err := a.issuer.Sign(u.ID)
	if err != nil {
		writeError(w, domain.Internal("sign token", err))
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}
