package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// Patterns are applied in order: secrets carried as query parameters first,
// then ids, emails and phone numbers. UUIDs go before phones so the loose
// phone pattern never eats a UUID's digit groups.
var (
	secretParamRE = regexp.MustCompile(`(?i)\b(token|code|secret|password)=[^&\s]*`)
	uuidRE        = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE       = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE       = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// alwaysMasked are header names whose values are never logged.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie"}

// redactor scrubs personal data and secrets out of loggable strings.
type redactor struct {
	masked map[string]struct{}
}

func newRedactor(extraMasked []string) *redactor {
	r := &redactor{masked: make(map[string]struct{}, len(alwaysMasked)+len(extraMasked))}
	for _, h := range append(append([]string{}, alwaysMasked...), extraMasked...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

// text replaces secrets, ids, emails and phone numbers in s.
func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = secretParamRE.ReplaceAllString(s, "$1="+redactedValue)
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// headers flattens h for logging, masking sensitive names entirely and
// scrubbing the rest.
func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = redactedValue
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}
