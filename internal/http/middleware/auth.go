// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the shared-secret bearer check that guards the
// internal API. The scheduling application is the only caller; it presents
// the configured token as "Authorization: Bearer <token>".
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyCaller is the Gin context key under which BearerAuth stores the
// authenticated caller name.
const ctxKeyCaller = "caller"

// BearerAuth rejects requests whose bearer token does not match token and
// tags accepted ones with caller. An empty token disables the guarded routes
// entirely so a missing secret never opens them.
func BearerAuth(token, caller string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortJSON(c, http.StatusServiceUnavailable, "unavailable", "internal API is not configured")
			return
		}
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="internal"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		c.Set(ctxKeyCaller, caller)
		c.Next()
	}
}

// abortJSON stops the chain with the standard error envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
