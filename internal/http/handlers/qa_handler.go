// Question-answering HTTP handlers.
//
// This file exposes the stateless QA endpoint and the retriever admin
// endpoint:
//   - POST /ask         (answer a free-form question, no session touched)
//   - POST /rag/reload  (rebuild the retriever in the background)
//
// The /ask endpoint never fails because generation failed: the pipeline
// degrades to an apology message and the response reports the retrieval
// status and failure class instead.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/services"
)

// AskRequest is the JSON payload for a stateless question.
type AskRequest struct {
	// Question is the free-form question text. It must be non-empty.
	Question string `json:"question" binding:"required,min=1" example:"Mengapa ekoenzim baik untuk lingkungan?"`
}

// AskSource is one context fragment that grounded the answer.
type AskSource struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// AskResponse is the JSON envelope for a generated answer.
//
// Status reflects the retrieval subsystem (active, no_docs, error,
// not_available); Failure is empty on success and names the generation
// failure class otherwise (quota, credential, network, safety, unknown).
type AskResponse struct {
	Answer       string      `json:"answer"`
	Sources      []AskSource `json:"sources"`
	SourcesCount int         `json:"sources_count"`
	Status       string      `json:"rag_system_status"`
	Failure      string      `json:"failure,omitempty"`
}

// Ask answers a free-form question through the retrieval and generation
// pipeline without creating or touching any session.
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	ans, err := h.engine.AskOpenQuestion(c.Request.Context(), strings.TrimSpace(req.Question))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuestion):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		default:
			failServer(c, ErrCodeAnswerFailed, err)
		}
		return
	}
	ok(c, http.StatusOK, toAskResponse(ans))
}

// toAskResponse converts a pipeline answer into the transport envelope.
func toAskResponse(ans rag.Answer) AskResponse {
	sources := make([]AskSource, 0, len(ans.Sources))
	for _, s := range ans.Sources {
		sources = append(sources, AskSource{Content: s.Content, Score: s.Score})
	}
	return AskResponse{
		Answer:       ans.Text,
		Sources:      sources,
		SourcesCount: len(sources),
		Status:       ans.Status,
		Failure:      string(ans.Failure),
	}
}

// ReloadRetriever triggers a background rebuild of the retrieval index and
// responds immediately. Requests keep hitting the previous retriever until
// the new one is published.
func (h *Handlers) ReloadRetriever(c *gin.Context) {
	if h.rc == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "retriever control unavailable")
		return
	}
	h.rc.Reload(c.Request.Context())
	ok(c, http.StatusAccepted, gin.H{"status": "reloading"})
}
