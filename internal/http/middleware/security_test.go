package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func securityRouter(opt SecurityOptions, requestID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if requestID != "" {
		r.Use(func(c *gin.Context) {
			c.Header(requestIDHeader, requestID)
			c.Next()
		})
	}
	r.Use(SecurityHeaders(opt))
	r.POST("/internal/events", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	r.GET("/swagger/*any", func(c *gin.Context) { c.String(http.StatusOK, "<html>") })
	return r
}

func TestSecurityHeaders_APIResponses(t *testing.T) {
	r := securityRouter(SecurityOptions{DocsPrefix: "/swagger/"}, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/events", nil))

	h := w.Header()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Equal(t, apiCSP, h.Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Equal(t, "X-Request-ID", h.Get("Access-Control-Expose-Headers"))
	assert.Empty(t, h.Get("Strict-Transport-Security"), "HSTS is opt-in")
}

func TestSecurityHeaders_DocsRelaxed(t *testing.T) {
	r := securityRouter(SecurityOptions{DocsPrefix: "/swagger/"}, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))

	assert.Equal(t, docsCSP, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Access-Control-Expose-Headers"))

	// Without a docs prefix the swagger path is just another API route.
	r = securityRouter(SecurityOptions{}, "")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	cases := []struct {
		name   string
		opt    SecurityOptions
		prep   func(*http.Request)
		expect string
	}{
		{"disabled", SecurityOptions{}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, ""},
		{"plain http", SecurityOptions{EnableHSTS: true}, func(*http.Request) {}, ""},
		{"direct tls default age", SecurityOptions{EnableHSTS: true},
			func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "max-age=15552000; includeSubDomains"},
		{"proxied https custom age", SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
			func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, "max-age=3600; includeSubDomains"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := securityRouter(tc.opt, "")
			req := httptest.NewRequest(http.MethodPost, "/internal/events", nil)
			tc.prep(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.expect, w.Header().Get("Strict-Transport-Security"))
		})
	}
}

func TestExposeHeader_AppendsOnce(t *testing.T) {
	h := http.Header{}
	exposeHeader(h, "X-Request-ID")
	assert.Equal(t, "X-Request-ID", h.Get("Access-Control-Expose-Headers"))

	h.Set("Access-Control-Expose-Headers", "Content-Length")
	exposeHeader(h, "X-Request-ID")
	exposeHeader(h, "x-request-id")
	assert.Equal(t, "Content-Length, X-Request-ID", h.Get("Access-Control-Expose-Headers"))
}
