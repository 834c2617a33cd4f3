// Session HTTP handlers.
//
// This file exposes REST endpoints for learning sessions:
//   - POST /sessions/start              (create-or-fetch a session)
//   - POST /sessions/message            (one conversational turn)
//   - POST /sessions/complete-activity  (mark an activity done)
//   - GET  /sessions/{id}/activities/{activity_id}/history
//   - GET  /sessions/{id}/overview
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
//
// Idempotency:
// If the client supplies an Idempotency-Key header on POST /sessions/message
// and a previous successful result exists for (user, session, key), the
// handler returns that recorded assistant message and sets
// `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/flow"
	"github.com/greenverse/ecombot-backend/internal/http/middleware"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"
	"github.com/greenverse/ecombot-backend/internal/services"
	"github.com/greenverse/ecombot-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionEngine defines the session lifecycle, conversation, and progress
// operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionEngine interface {
	// StartSession creates-or-fetches the learner's session for sessionKey.
	StartSession(ctx context.Context, userID, sessionKey, initialActivity string) (*domain.ChatSession, bool, error)
	// SendSessionMessage appends a learner message and returns the assistant reply.
	SendSessionMessage(ctx context.Context, userID, sessionRef, text, activityID string) (*domain.ChatMessage, error)
	// AskOpenQuestion answers a free-form question without touching any session.
	AskOpenQuestion(ctx context.Context, question string) (rag.Answer, error)
	// SubmitActivityAnswer upserts the learner's answer and recomputes progress.
	SubmitActivityAnswer(ctx context.Context, userID, sessionRef, activityID string, q services.QuestionData, answerText, answerType string) (*services.AnswerResult, error)
	// CompleteActivity idempotently marks an activity completed.
	CompleteActivity(ctx context.Context, userID, sessionRef, activityID string) (*domain.ActivityProgress, error)
	// GetActivityHistory returns the transcript and answers for one activity.
	GetActivityHistory(ctx context.Context, userID, sessionRef, activityID string) ([]domain.ChatMessage, []domain.AnswerRecord, error)
	// GetSessionOverview returns one status row per flow activity.
	GetSessionOverview(ctx context.Context, userID, sessionRef string) ([]services.ActivityOverview, error)
	// SetSessionStatus applies an explicit active/paused/completed signal.
	SetSessionStatus(ctx context.Context, userID, sessionRef, status string) (*domain.ChatSession, error)
	// Canonical returns the learner's most recently updated session.
	Canonical(ctx context.Context, userID string) (*domain.ChatSession, error)
	// Sessions lists the learner's sessions, most recent first.
	Sessions(ctx context.Context, userID string) ([]domain.ChatSession, error)
	// SessionTranscript returns one transcript page plus the total count.
	SessionTranscript(ctx context.Context, userID, sessionRef string, page, pageSize int) ([]domain.ChatMessage, int64, error)
	// AggregateProgress returns the denormalized per-session counters.
	AggregateProgress(ctx context.Context, userID, sessionRef string) (*domain.UserProgress, error)
	// SavedAnswer returns the stored answer for one question, nil when absent.
	SavedAnswer(ctx context.Context, userID, sessionRef, questionID string) (*domain.AnswerRecord, error)
}

// ComicTracker defines comic reading progress operations.
type ComicTracker interface {
	// RecordPage advances the last-read page for one episode.
	RecordPage(ctx context.Context, userID, comicSlug, episodeSlug string, page int) (*domain.ComicProgress, error)
	// Finish marks an episode finished once the page threshold is met.
	Finish(ctx context.Context, userID, comicSlug, episodeSlug string) (*domain.ComicProgress, error)
	// Progress lists episode progress for one comic.
	Progress(ctx context.Context, userID, comicSlug string) ([]domain.ComicProgress, error)
}

// FeedbackSink defines operations to capture visitor feedback.
type FeedbackSink interface {
	// Submit stores one free-form feedback message.
	Submit(ctx context.Context, name, email, message string) (*domain.Feedback, error)
	// List returns recent feedback entries, newest first.
	List(ctx context.Context, limit int) ([]domain.Feedback, error)
}

// RetrieverControl exposes the retrieval subsystem to transport: its current
// status for health output and a trigger to rebuild it in the background.
type RetrieverControl interface {
	// Status reports the active retrieval status (active, no_docs, error,
	// not_available).
	Status() string
	// Reload rebuilds the retriever asynchronously and swaps it in when done.
	Reload(ctx context.Context)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions, answers, comics, and feedback.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	engine   SessionEngine
	comicSvc ComicTracker
	fbSvc    FeedbackSink
	rc       RetrieverControl
}

// New constructs and returns a Handlers instance bound to the given services.
func New(engine SessionEngine, comicSvc ComicTracker, fbSvc FeedbackSink, rc RetrieverControl) *Handlers {
	return &Handlers{engine: engine, comicSvc: comicSvc, fbSvc: fbSvc, rc: rc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// StartSessionRequest is the JSON payload for creating or resuming a session.
type StartSessionRequest struct {
	// SessionID optionally names the client session key; one is generated
	// when empty.
	SessionID string `json:"session_id" example:"kelas-7a-sesi-1"`
	// InitialActivity optionally sets the starting node of a new session.
	InitialActivity string `json:"initial_activity" example:"pendahuluan"`
}

// StartSessionResponse wraps the session resource and whether it was created.
type StartSessionResponse struct {
	Session *domain.ChatSession `json:"session"`
	Created bool                `json:"created"`
}

// SessionMessageRequest is the JSON payload for one conversational turn.
type SessionMessageRequest struct {
	// SessionID references the session by client key or row id.
	SessionID string `json:"session_id" binding:"required,min=1" example:"kelas-7a-sesi-1"`
	// Message is the learner text. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"Apa itu kimia hijau?"`
	// ActivityID optionally pins the turn to an activity; defaults to the
	// session's current activity.
	ActivityID string `json:"activity_id" example:"kegiatan_1"`
}

// SessionMessageResponse is the JSON envelope for the assistant reply.
// The flat shape is the wire contract clients key on: message_id and
// timestamp identify the reply, response carries the assistant text.
type SessionMessageResponse struct {
	MessageID  string    `json:"message_id"`
	SessionID  string    `json:"session_id"`
	ActivityID string    `json:"activity_id"`
	Role       string    `json:"role"`
	Character  string    `json:"character,omitempty"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}

// toSessionMessageResponse flattens the stored assistant message into the
// transport envelope.
func toSessionMessageResponse(m *domain.ChatMessage) SessionMessageResponse {
	return SessionMessageResponse{
		MessageID:  m.ID,
		SessionID:  m.SessionID,
		ActivityID: m.ActivityID,
		Role:       m.Role,
		Character:  m.Character,
		Response:   m.Content,
		Timestamp:  m.CreatedAt,
	}
}

// SessionStatusRequest is the JSON payload for an explicit lifecycle signal.
type SessionStatusRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1"`
	// Status is one of active, paused, completed.
	Status string `json:"status" binding:"required,min=1" example:"paused"`
}

// SessionStatusResponse returns the session after the transition.
type SessionStatusResponse struct {
	Session *domain.ChatSession `json:"session"`
}

// SessionListResponse carries the learner's sessions, canonical first.
type SessionListResponse struct {
	Sessions []domain.ChatSession `json:"sessions"`
}

// CurrentSessionResponse pairs the canonical session with its aggregate
// progress counters.
type CurrentSessionResponse struct {
	Session  *domain.ChatSession  `json:"session"`
	Progress *domain.UserProgress `json:"progress"`
}

// TranscriptResponse is one page of the session transcript in sequence order.
type TranscriptResponse struct {
	SessionID string               `json:"session_id"`
	Messages  []domain.ChatMessage `json:"messages"`
	Total     int64                `json:"total"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"page_size"`
}

// CompleteActivityRequest is the JSON payload for marking an activity done.
type CompleteActivityRequest struct {
	SessionID  string `json:"session_id" binding:"required,min=1"`
	ActivityID string `json:"activity_id" binding:"required,min=1" example:"kegiatan_2"`
}

// ActivityHistoryResponse carries the transcript and answers of one activity.
type ActivityHistoryResponse struct {
	ActivityID string                `json:"activity_id"`
	Title      string                `json:"title"`
	Messages   []domain.ChatMessage  `json:"messages"`
	Answers    []domain.AnswerRecord `json:"answers"`
}

// SessionOverviewResponse carries one status row per flow activity.
type SessionOverviewResponse struct {
	SessionID  string                      `json:"session_id"`
	Activities []services.ActivityOverview `json:"activities"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxMessageRunes inspects the concrete SessionService for a configured
// message-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxMessageRunes(engine SessionEngine) int {
	const fallback = 4000
	if svc, ok := engine.(*services.SessionService); ok {
		if svc.MaxMessageRunes > 0 {
			return svc.MaxMessageRunes
		}
	}
	return fallback
}

// engineDB returns the underlying *gorm.DB when the engine is the concrete
// service, enabling best-effort idempotency replay and ETag checks.
func engineDB(engine SessionEngine) *gorm.DB {
	if svc, ok := engine.(*services.SessionService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// StartSession creates a session for the current learner, or returns the
// existing one when the (user, session key) pair is already known. A created
// session responds 201, a resumed one 200.
func (h *Handlers) StartSession(c *gin.Context) {
	// An empty body is fine for this endpoint; every field is optional.
	var req StartSessionRequest
	if c.Request != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	sess, created, err := h.engine.StartSession(
		c.Request.Context(), userID(c),
		strings.TrimSpace(req.SessionID),
		strings.TrimSpace(req.InitialActivity),
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownActivity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown activity")
		default:
			failServer(c, ErrCodeCreateFailed, err)
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, StartSessionResponse{Session: sess, Created: created})
}

// PostSessionMessage appends a learner message to the session and returns the
// assistant reply. Supports idempotency via the Idempotency-Key header (same
// key, same result).
func (h *Handlers) PostSessionMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req SessionMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id and message required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Message)
	maxRunes := discoverMaxMessageRunes(h.engine)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	currentUser := userID(c)
	sessionRef := strings.TrimSpace(req.SessionID)

	// Idempotency (replay path): read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" {
		if db := engineDB(h.engine); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, currentUser, sessionRef, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, db, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, toSessionMessageResponse(prev))
					return
				}
			}
		}
	}

	// Normal processing (service has a second guard for length).
	m, err := h.engine.SendSessionMessage(ctx, currentUser, sessionRef, content, strings.TrimSpace(req.ActivityID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrUnknownActivity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown activity")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		default:
			failServer(c, ErrCodeAnswerFailed, err)
		}
		return
	}

	// Idempotency (store path): best effort.
	if idemKey != "" {
		if db := engineDB(h.engine); db != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, db, currentUser, sessionRef, idemKey, m.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, toSessionMessageResponse(m))
}

// SetSessionStatus applies the client's explicit lifecycle signal to the
// session. Pausing and resuming flip between active and paused; completed is
// terminal and keeps its first completion timestamp on repeat signals.
func (h *Handlers) SetSessionStatus(c *gin.Context) {
	var req SessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id and status required")
		return
	}

	sess, err := h.engine.SetSessionStatus(c.Request.Context(), userID(c),
		strings.TrimSpace(req.SessionID), strings.TrimSpace(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be active, paused, or completed")
		default:
			failServer(c, ErrCodeInternal, err)
		}
		return
	}
	ok(c, http.StatusOK, SessionStatusResponse{Session: sess})
}

// ListSessions returns all of the learner's sessions, most recently updated
// first.
func (h *Handlers) ListSessions(c *gin.Context) {
	rows, err := h.engine.Sessions(c.Request.Context(), userID(c))
	if err != nil {
		failServer(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, SessionListResponse{Sessions: rows})
}

// GetCurrentSession returns the learner's canonical session (the most
// recently updated one) together with its aggregate progress, so a client
// can resume where the learner left off without tracking session keys.
func (h *Handlers) GetCurrentSession(c *gin.Context) {
	ctx := c.Request.Context()
	currentUser := userID(c)

	sess, err := h.engine.Canonical(ctx, currentUser)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no sessions yet")
		return
	}
	agg, err := h.engine.AggregateProgress(ctx, currentUser, sess.ID)
	if err != nil {
		failServer(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, CurrentSessionResponse{Session: sess, Progress: agg})
}

// GetSessionMessages returns one page of the full transcript in sequence
// order. Pagination uses the page/page_size query parameters, defaulting to
// the first page of 20.
func (h *Handlers) GetSessionMessages(c *gin.Context) {
	sessionRef := c.Param("id")
	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), 20)

	msgs, total, err := h.engine.SessionTranscript(c.Request.Context(), userID(c), sessionRef, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			failServer(c, ErrCodeListFailed, err)
		}
		return
	}
	ok(c, http.StatusOK, TranscriptResponse{
		SessionID: sessionRef,
		Messages:  msgs,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// CompleteActivity marks an activity completed for the session. The operation
// is idempotent: repeating it returns the same progress row.
func (h *Handlers) CompleteActivity(c *gin.Context) {
	var req CompleteActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id and activity_id required")
		return
	}

	prog, err := h.engine.CompleteActivity(c.Request.Context(), userID(c), strings.TrimSpace(req.SessionID), strings.TrimSpace(req.ActivityID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrUnknownActivity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown activity")
		default:
			failServer(c, ErrCodeInternal, err)
		}
		return
	}
	ok(c, http.StatusOK, prog)
}

// GetActivityHistory returns the transcript and stored answers for one
// activity within a session. Supports a weak ETag derived from the message
// statistics and may return 304.
func (h *Handlers) GetActivityHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sessionRef := c.Param("id")
	activityID := c.Param("activity_id")

	// ETag pre-check (best effort, only matches when the ref is the row id).
	if db := engineDB(h.engine); db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, sessionRef)
		if err == nil && count > 0 {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"history:%s:%s:%d:%d"`, sessionRef, activityID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	msgs, answers, err := h.engine.GetActivityHistory(ctx, userID(c), sessionRef, activityID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrUnknownActivity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown activity")
		default:
			failServer(c, ErrCodeListFailed, err)
		}
		return
	}
	ok(c, http.StatusOK, ActivityHistoryResponse{
		ActivityID: activityID,
		Title:      flow.TitleFor(activityID),
		Messages:   msgs,
		Answers:    answers,
	})
}

// GetSessionOverview returns one row per flow activity with message and
// answer counts and the progress status. Supports a weak ETag derived from
// the user's session statistics and may return 304.
func (h *Handlers) GetSessionOverview(c *gin.Context) {
	ctx := c.Request.Context()
	sessionRef := c.Param("id")
	currentUser := userID(c)

	if db := engineDB(h.engine); db != nil {
		count, maxTS, err := repo.SessionsStats(ctx, db, currentUser)
		if err == nil && count > 0 {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"overview:%s:%s:%d:%d"`, currentUser, sessionRef, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	rows, err := h.engine.GetSessionOverview(ctx, currentUser, sessionRef)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			failServer(c, ErrCodeListFailed, err)
		}
		return
	}
	ok(c, http.StatusOK, SessionOverviewResponse{
		SessionID:  sessionRef,
		Activities: rows,
	})
}
