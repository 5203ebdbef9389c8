// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/jonathan/applications-dashboard/internal/config"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// userKey is the context key for storing the authenticated user name.
const userKey ContextKey = "user"

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "appdash"

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier func(password, hash string) bool

// BasicAuth creates middleware that requires HTTP basic credentials matching user and the bcrypt
// passwordHash. The user name is added to the request context.
func BasicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return BasicAuthWithVerifier(user, passwordHash, config.VerifyPassword)
}

// BasicAuthWithVerifier is BasicAuth with a custom password check.
func BasicAuthWithVerifier(user, passwordHash string, verify PasswordVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotPassword, ok := r.BasicAuth()
			if !ok || gotPassword == "" {
				unauthorized(w)
				return
			}

			userMatches := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
			// Verify even on a user mismatch so both paths cost a bcrypt comparison.
			passwordMatches := verify(gotPassword, passwordHash)
			if !userMatches || !passwordMatches {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, gotUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`", charset="UTF-8"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// GetUser extracts the authenticated user name from the request context.
func GetUser(r *http.Request) (string, bool) {
	user, ok := r.Context().Value(userKey).(string)
	return user, ok
}
