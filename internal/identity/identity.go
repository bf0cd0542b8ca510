// Package identity stands in for the external identity provider boundary the
// spec assumes (token verification itself is out of scope, but the system
// must consume verified claims). It keeps the teacher's HS256 JWT + bcrypt
// dev/test stack behind a Verifier interface so a real provider can be
// swapped in without touching callers.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/karti/auctionhouse/internal/domain"
)

// Claims is the minimal identity the rest of the system needs from a token.
type Claims struct {
	UserID string
}

// Verifier authenticates a bearer token into Claims. The HMAC implementation
// below is the dev/test stand-in; production deployments would swap it for
// a verifier backed by the real identity provider's JWKS.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

type hmacVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) Verifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(_ context.Context, tokenStr string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, domain.Unauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, domain.Unauthorized("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, domain.Unauthorized("invalid token subject")
	}
	return Claims{UserID: sub}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, error) {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("missing or invalid Authorization header")
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}

// Issuer signs dev/test tokens, used by the identity stand-in's own
// register and login endpoints.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

func (i *Issuer) Sign(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

func ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.Unauthorized("invalid email or password")
	}
	return nil
}
