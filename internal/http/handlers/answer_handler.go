// Answer HTTP handlers.
//
// This file exposes the REST endpoint for submitting scripted-question
// answers:
//   - POST /sessions/answers  (idempotent upsert keyed by session + question)
//
// Resubmitting the same question overwrites the stored answer in place and
// returns "updated" instead of "created"; the aggregate progress in the
// response is always recomputed by counting, so repeated submissions never
// inflate it.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/repo"
	"github.com/greenverse/ecombot-backend/internal/services"
)

// SubmitAnswerRequest is the JSON payload for storing a learner answer.
type SubmitAnswerRequest struct {
	// SessionID references the session by client key or row id.
	SessionID string `json:"session_id" binding:"required,min=1"`
	// ActivityID names the flow node the answer belongs to.
	ActivityID string `json:"activity_id" binding:"required,min=1" example:"kegiatan_3"`
	// Question describes the scripted question being answered.
	Question services.QuestionData `json:"question"`
	// AnswerText is the learner's response. It must be non-empty.
	AnswerText string `json:"answer_text" binding:"required,min=1"`
	// AnswerType is one of essay, discussion, challenge, creative,
	// reflective. Defaults to essay.
	AnswerType string `json:"answer_type" example:"essay"`
}

// SubmitAnswerResponse reports the action taken and the recomputed aggregate.
type SubmitAnswerResponse struct {
	// Action is "created" on first submission, "updated" on resubmission.
	Action   string               `json:"action"`
	Answer   *domain.AnswerRecord `json:"answer"`
	Progress *domain.UserProgress `json:"progress"`
}

// SubmitAnswer stores a learner answer for a scripted question, completes the
// activity, and returns the recomputed progress aggregate. A first submission
// responds 201, a resubmission 200.
func (h *Handlers) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id, activity_id and answer_text required")
		return
	}

	res, err := h.engine.SubmitActivityAnswer(
		c.Request.Context(), userID(c),
		strings.TrimSpace(req.SessionID),
		strings.TrimSpace(req.ActivityID),
		req.Question,
		req.AnswerText,
		strings.TrimSpace(req.AnswerType),
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrUnknownActivity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown activity")
		case errors.Is(err, services.ErrEmptyAnswer):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer_text required")
		case errors.Is(err, services.ErrInvalidAnswerType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid answer_type")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "answer_text too long")
		default:
			failServer(c, ErrCodeSubmitFailed, err)
		}
		return
	}

	status := http.StatusOK
	if res.Action == repo.AnswerCreated {
		status = http.StatusCreated
	}
	ok(c, status, SubmitAnswerResponse{
		Action:   res.Action,
		Answer:   res.Answer,
		Progress: res.Progress,
	})
}

// GetSavedAnswer returns the stored answer for one question in the session,
// letting the client restore a learner's earlier submission into the form.
// 404 when the session is unknown or the question was never answered.
func (h *Handlers) GetSavedAnswer(c *gin.Context) {
	sessionRef := c.Param("id")
	questionID := c.Param("question_id")

	rec, err := h.engine.SavedAnswer(c.Request.Context(), userID(c), sessionRef, questionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			failServer(c, ErrCodeListFailed, err)
		}
		return
	}
	if rec == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "answer not found")
		return
	}
	ok(c, http.StatusOK, rec)
}
