// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. RequireAuth and OptionalAuth read
// a bearer token from the Authorization header and store the resolved user ID
// in the Gin context under "userID", which the rate limiter, idempotency
// validator and access logs read back. RequireInternalToken guards routes that
// are only called by trusted infrastructure (the task runner).
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderInternalToken carries the shared secret for internal routes.
const HeaderInternalToken = "X-Internal-Token"

const ctxKeyUserID = "userID"

// ErrUnauthenticated must be wrapped by an Authenticator when the token is
// unusable (bad signature, expired, unknown user). Any other error is
// treated as a server fault.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a bearer token to a user ID.
type Authenticator func(ctx context.Context, token string) (userID string, err error)

// UserID returns the authenticated user ID, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// RequireAuth rejects requests without a valid bearer token with 401.
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		uid, err := authn(c.Request.Context(), token)
		switch {
		case errors.Is(err, ErrUnauthenticated):
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		case err != nil:
			LoggerFrom(c).Error().Err(err).Msg("authenticate")
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// OptionalAuth sets the user ID when a valid token is present and otherwise
// lets the request through anonymously. Handlers decide what an anonymous
// caller gets.
func OptionalAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if uid, err := authn(c.Request.Context(), token); err == nil {
				c.Set(ctxKeyUserID, uid)
			} else if !errors.Is(err, ErrUnauthenticated) {
				LoggerFrom(c).Warn().Err(err).Msg("optional authenticate")
			}
		}
		c.Next()
	}
}

// RequireInternalToken compares X-Internal-Token against secret in constant
// time. An empty secret rejects every request.
func RequireInternalToken(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderInternalToken))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid internal token")
			return
		}
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// abortJSON writes the standard error envelope. It mirrors the handlers
// package shape without importing it.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
