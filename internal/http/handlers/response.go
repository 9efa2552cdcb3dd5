// Package handlers implements the interactions webhook and the internal API.
//
// Internal API errors use the JSON envelope below with a stable code from
// errors.go. Server-side failures never echo the underlying error to the
// caller: it is attached to the Gin context, so the access log carries it,
// and the client sees a generic message plus the request id to quote.
//
//	HTTP/1.1 409 Conflict
//	{"request_id":"123e4567-e89b-12d3-a456-426614174000","code":"conflict","message":"event already exists"}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pollcord/internal/http/middleware"
)

// ErrorResponse is the error envelope of the internal API.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"group not found"`
}

// fail answers a client error with the envelope and stops the chain.
func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail to the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// serverError logs err with the request-scoped logger, records it on the
// context and answers 500 with a message that does not leak internals.
func serverError(c *gin.Context, code string, err error) {
	_ = c.Error(err)
	middleware.LoggerFrom(c).Error().Err(err).Str("code", code).Msg("request failed")
	fail(c, http.StatusInternalServerError, code, "internal error, quote the request id when reporting")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
