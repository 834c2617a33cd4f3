// Package handlers provides HTTP handler implementations for the public API.
//
// Every endpoint writes its responses through the helpers in this file so
// the wire shape stays uniform: successes are plain JSON bodies, failures
// are an ErrorResponse envelope with a stable machine-readable code.
//
// A failed lookup renders as:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "session not found"
//	}
//
// and a success as, for example:
//
//	HTTP/1.1 200 OK
//	{ "id": "abc123", "current_activity": "pendahuluan" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenverse/ecombot-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by all endpoints. RequestID
// echoes the X-Request-ID header so a client report can be matched to the
// server logs; Code is one of the errors.go constants; Message is safe to
// show to learners.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"session not found"`
}

// fail aborts the request with the error envelope. 5xx statuses are also
// logged through the request-scoped logger; client errors are left to the
// access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// msgServerError is the only message a 5xx body ever carries. The real
// error stays in the server logs; learners get an apology they can read.
const msgServerError = "Maaf, terjadi kesalahan pada server. Silakan coba lagi nanti."

// failServer aborts with a 500 envelope. err goes to the request-scoped
// logger only; the body carries the fixed apology, never driver or SDK text.
func failServer(c *gin.Context, code string, err error) {
	middleware.LoggerFrom(c).Error().
		Err(err).
		Str("code", code).
		Msg("api error")

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msgServerError,
	})
}

// Fail exposes fail to the router for its NoRoute and NoMethod envelopes.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
