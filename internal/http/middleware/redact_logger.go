// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the structured access logger. Learner
// traffic routinely carries identifiers we must not persist in logs (session
// UUIDs, emails submitted through the feedback form, phone numbers typed into
// free-text answers that end up in query strings), so every logged value is
// scrubbed first.
//
// Properties:
//   - request and response bodies are never logged
//   - emails, phone numbers, and UUID-shaped identifiers are pattern-redacted
//   - Authorization, Cookie, and Set-Cookie are fully masked, plus any extra
//     headers named in RedactOptions.MaskHeaders
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-User-ID"},
//	}))
//
// Scrubbing is regex-based over raw strings; clients should still keep PII
// out of query strings and headers where they can.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Patterns are compiled once at init. UUIDs must be redacted before phone
// numbers: the phone pattern is loose enough to match the digit runs inside
// a UUID otherwise.
var (
	scrubUUIDRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	scrubEmailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only so hex segments of already-redacted IDs never match.
	// Matches forms like "+62 812-3456-7890" and "(0274) 555-1212".
	scrubPhoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// RedactOptions configures extra scrub behavior for RedactingLogger.
//
// MaskHeaders lists additional header names whose values are replaced
// with "[REDACTED]" wholesale. Names are matched case-insensitively and
// merged with the built-in set.
type RedactOptions struct {
	MaskHeaders []string
}

type scrubber struct {
	masked map[string]struct{}
}

func newScrubber(extra []string) *scrubber {
	s := &scrubber{masked: map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.masked[h] = struct{}{}
		}
	}
	return s
}

// scrub pattern-redacts identifiers in arbitrary text. Order: id, email,
// phone (loosest last).
func (s *scrubber) scrub(v string) string {
	if v == "" {
		return v
	}
	v = scrubUUIDRE.ReplaceAllString(v, "[REDACTED:id]")
	v = scrubEmailRE.ReplaceAllString(v, "[REDACTED:email]")
	v = scrubPhoneRE.ReplaceAllString(v, "[REDACTED:phone]")
	return v
}

// headers returns a log-safe copy of the request headers: masked names are
// replaced entirely, everything else is pattern-scrubbed.
func (s *scrubber) headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, full := s.masked[strings.ToLower(k)]; full {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = s.scrub(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger returns a Gin middleware that writes one structured log
// line per request: method, route pattern, scrubbed query, status, response
// size, latency, and scrubbed headers. Severity follows the status code
// (info, warn for 4xx, error for 5xx). The request id is taken from the
// X-Request-ID response header, falling back to the request header.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	s := newScrubber(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := s.scrub(c.Request.URL.RawQuery)
		safeHeaders := s.headers(c.Request.Header)

		c.Next()

		status := c.Writer.Status()

		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
