// Comic progress HTTP handlers.
//
// This file exposes REST endpoints for tracking how far a learner has read
// the educational comic:
//   - GET  /comic-progress         (list episode progress for a comic)
//   - POST /comic-progress         (record the last-read page)
//   - POST /comic-progress/finish  (mark an episode finished)
//
// The last-read page only moves forward; finishing an episode is gated on a
// minimum page threshold so a learner cannot finish what they never opened.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/services"
)

// ComicPageRequest is the JSON payload for recording reading progress.
type ComicPageRequest struct {
	ComicSlug   string `json:"comic_slug" binding:"required,min=1" example:"petualangan-eco"`
	EpisodeSlug string `json:"episode_slug" binding:"required,min=1" example:"episode-1"`
	// Page is the last page the learner has reached.
	Page int `json:"page" example:"5"`
}

// ComicFinishRequest is the JSON payload for finishing an episode.
type ComicFinishRequest struct {
	ComicSlug   string `json:"comic_slug" binding:"required,min=1"`
	EpisodeSlug string `json:"episode_slug" binding:"required,min=1"`
}

// ComicProgressResponse wraps episode progress rows for one comic.
type ComicProgressResponse struct {
	ComicSlug string                 `json:"comic_slug"`
	Episodes  []domain.ComicProgress `json:"episodes"`
}

// PostComicProgress records the learner's last-read page for an episode.
// Pages never move backwards; sending a smaller page keeps the stored one.
func (h *Handlers) PostComicProgress(c *gin.Context) {
	var req ComicPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comic_slug and episode_slug required")
		return
	}

	rec, err := h.comicSvc.RecordPage(c.Request.Context(), userID(c), req.ComicSlug, req.EpisodeSlug, req.Page)
	if err != nil {
		failServer(c, ErrCodeInternal, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// FinishComic marks an episode finished once the learner has read past the
// page threshold.
func (h *Handlers) FinishComic(c *gin.Context) {
	var req ComicFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comic_slug and episode_slug required")
		return
	}

	rec, err := h.comicSvc.Finish(c.Request.Context(), userID(c), req.ComicSlug, req.EpisodeSlug)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrComicBelowThreshold):
			fail(c, http.StatusConflict, ErrCodeBelowThreshold, "read more pages before finishing this episode")
		default:
			failServer(c, ErrCodeInternal, err)
		}
		return
	}
	ok(c, http.StatusOK, rec)
}

// GetComicProgress lists the learner's episode progress for one comic,
// selected by the `comic` query parameter.
func (h *Handlers) GetComicProgress(c *gin.Context) {
	comicSlug := strings.TrimSpace(c.Query("comic"))
	if comicSlug == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comic query parameter required")
		return
	}

	rows, err := h.comicSvc.Progress(c.Request.Context(), userID(c), comicSlug)
	if err != nil {
		failServer(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, ComicProgressResponse{ComicSlug: comicSlug, Episodes: rows})
}
