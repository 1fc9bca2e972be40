package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerTokenAuth validates Bearer tokens on the HTTP transport. The stdio
// transport never goes through it.
type BearerTokenAuth struct {
	token string
}

// NewBearerTokenAuth creates a new Bearer token authenticator
func NewBearerTokenAuth(token string) *BearerTokenAuth {
	return &BearerTokenAuth{token: token}
}

// IsAuthorized validates the Bearer token from the Authorization header.
// Comparison is constant-time.
func (b *BearerTokenAuth) IsAuthorized(r *http.Request) bool {
	const bearerPrefix = "Bearer "

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return false
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(b.token)) == 1
}

// SetUnauthorizedHeaders sets the standard WWW-Authenticate header for
// Bearer auth on a rejected response.
func (b *BearerTokenAuth) SetUnauthorizedHeaders(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
}
