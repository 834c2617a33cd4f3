// Feedback HTTP handlers.
//
// This file exposes REST endpoints for visitor feedback:
//   - POST /feedback  (submit a free-form message)
//   - GET  /feedback  (list recent feedback, newest first)
//
// Handlers in this file are transport-thin: they validate input, delegate to
// application services, and translate domain/service errors into HTTP results.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/services"
	"github.com/greenverse/ecombot-backend/internal/utils"
)

// SubmitFeedbackRequest is the JSON payload for creating feedback.
//
// Name and Email are optional; anonymous feedback is accepted.
type SubmitFeedbackRequest struct {
	Name  string `json:"name" example:"Siti"`
	Email string `json:"email" example:"siti@example.com"`
	// Message is the feedback text. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"Komiknya seru!"`
}

// ListFeedbackResponse wraps recent feedback entries.
type ListFeedbackResponse struct {
	Feedback []domain.Feedback `json:"feedback"`
}

// SubmitFeedback records a free-form feedback message from a visitor.
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	fb, err := h.fbSvc.Submit(c.Request.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyFeedback):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		default:
			failServer(c, ErrCodeCreateFailed, err)
		}
		return
	}
	ok(c, http.StatusCreated, fb)
}

// ListFeedback returns recent feedback entries, newest first. The `limit`
// query parameter caps the result size (default 50, max 200).
func (h *Handlers) ListFeedback(c *gin.Context) {
	const (
		defaultLimit = 50
		maxLimit     = 200
	)
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultLimit), 1, maxLimit)

	rows, err := h.fbSvc.List(c.Request.Context(), limit)
	if err != nil {
		failServer(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, ListFeedbackResponse{Feedback: rows})
}
