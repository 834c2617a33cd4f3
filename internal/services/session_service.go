// Package services – SessionService (lifecycle and conversation)
//
// This file implements the session half of SessionService: session
// creation-or-fetch with a seeded opening message, transcript appends, the
// stateless open-question path, and the session-bound conversational turn
// with its fallback chain. Progress operations (answers, completion,
// overview) live in progress_service.go.
//
// Concurrency: sequence assignment and upserts for one session are serialized
// through a per-session mutex. The mutex is never held across Retriever or
// Answerer calls; persistence happens before and after the remote call.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// session/user identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/flow"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// assistantCharacter is the persona name stamped on scripted replies.
const assistantCharacter = "ecombot"

// fixedApology is the last-resort assistant reply when the whole generation
// chain failed. The transcript invariant requires some assistant message
// after every learner message.
const fixedApology = "Maaf, aku sedang kesulitan menjawab. Silakan coba lagi sebentar lagi ya."

// QAPipeline is the generation capability the engine orchestrates. Satisfied
// by *rag.Pipeline; tests substitute fakes.
type QAPipeline interface {
	Answer(ctx context.Context, question string, history []rag.HistoryTurn) rag.Answer
}

// SessionService owns session lifecycle, the message log, answer storage, the
// activity-completion state machine, and generation orchestration.
type SessionService struct {
	DB       *gorm.DB
	Pipeline QAPipeline

	// HistoryLimit bounds how many prior turns feed the Answerer.
	HistoryLimit int
	// MaxMessageRunes caps learner message length. 0 disables the check.
	MaxMessageRunes int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionService constructs a SessionService with defaults.
func NewSessionService(db *gorm.DB, pipeline QAPipeline) *SessionService {
	return &SessionService{
		DB:           db,
		Pipeline:     pipeline,
		HistoryLimit: rag.DefaultHistoryLimit,
	}
}

// lock returns the mutex serializing writers for one session.
func (s *SessionService) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	return m
}

// findSession resolves a session reference (client session key, or row ID)
// for the learner, returning ErrSessionNotFound when absent or owned by
// someone else.
func (s *SessionService) findSession(ctx context.Context, userID, ref string) (*domain.ChatSession, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := repo.GetSessionByKey(ctx, s.DB, userID, ref)
	if err == nil {
		return sess, nil
	}
	sess, err = repo.GetSession(ctx, s.DB, ref, userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// StartSession creates-or-fetches the learner's session for sessionKey. A new
// session starts at initialActivity (default: the flow entry node), seeds one
// opening assistant message, and creates the aggregate progress row. The call
// is idempotent: repeating it returns the existing session without a second
// opening message. The returned bool reports whether the session was created.
func (s *SessionService) StartSession(ctx context.Context, userID, sessionKey, initialActivity string) (*domain.ChatSession, bool, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "StartSession",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("session.key", sessionKey),
		),
	)
	defer span.End()

	if sessionKey == "" {
		sessionKey = uuid.NewString()
	}
	activity := strings.TrimSpace(initialActivity)
	if activity == "" {
		activity = flow.EntryID
	}
	node, ok := flow.Get(activity)
	if !ok {
		return nil, false, ErrUnknownActivity
	}

	if existing, err := repo.GetSessionByKey(ctx, s.DB, userID, sessionKey); err == nil {
		return existing, false, nil
	}

	sess, err := repo.CreateSession(ctx, s.DB, userID, sessionKey, node.ID)
	if err != nil {
		// Lost a race with a concurrent start: the winner's row is the session.
		if errors.Is(err, repo.ErrDuplicate) {
			existing, gerr := repo.GetSessionByKey(ctx, s.DB, userID, sessionKey)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	mu := s.lock(sess.ID)
	mu.Lock()
	_, err = repo.AppendMessage(ctx, s.DB, sess.ID, domain.RoleAssistant, assistantCharacter, node.Narrative, node.ID, "")
	mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	if _, err := repo.MarkActivityStarted(ctx, s.DB, sess.ID, node.ID); err != nil {
		return nil, false, err
	}
	if _, err := repo.RecomputeUserProgress(ctx, s.DB, userID, sess.ID); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// RecordMessage appends one transcript turn with the next sequence number and
// moves the session's activity pointer. It fails with ErrEmptyMessage on a
// blank body and ErrUnknownActivity when activityID is not a flow node.
func (s *SessionService) RecordMessage(ctx context.Context, userID, sessionRef, role, character, body, activityID, payload string) (*domain.ChatMessage, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "RecordMessage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("activity.id", activityID),
		),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	node, ok := flow.Get(activityID)
	if !ok {
		return nil, ErrUnknownActivity
	}
	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}

	mu := s.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := repo.AppendMessage(ctx, s.DB, sess.ID, role, character, body, node.ID, payload)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateSessionActivity(ctx, s.DB, sess.ID, userID, node.ID); err != nil {
		return nil, err
	}
	return msg, nil
}

// AskOpenQuestion is the stateless free-form Q&A path. It touches no session
// state and always returns a non-empty answer: generation failures resolve to
// a class-specific Indonesian apology inside the pipeline.
func (s *SessionService) AskOpenQuestion(ctx context.Context, question string) (rag.Answer, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "AskOpenQuestion")
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return rag.Answer{}, ErrEmptyQuestion
	}
	return s.Pipeline.Answer(ctx, question, nil), nil
}

// SendSessionMessage handles one session-bound conversational turn: the
// learner message is persisted first, a reply is produced (scripted
// navigation or the generation pipeline), and the reply is persisted under
// the same activity. Every learner message gets exactly one assistant reply,
// immediately following it in sequence order; generation failures degrade
// through a bare-question retry down to a fixed apology, never an error.
func (s *SessionService) SendSessionMessage(ctx context.Context, userID, sessionRef, text, activityID string) (*domain.ChatMessage, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SendSessionMessage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}

	activity := strings.TrimSpace(activityID)
	if activity == "" {
		activity = sess.CurrentActivity
	}
	if !flow.Valid(activity) {
		return nil, ErrUnknownActivity
	}

	mu := s.lock(sess.ID)

	// Persist the learner turn before any remote call.
	mu.Lock()
	if _, err := repo.AppendMessage(ctx, s.DB, sess.ID, domain.RoleUser, "", text, activity, ""); err != nil {
		mu.Unlock()
		return nil, err
	}
	mu.Unlock()

	// Keyword navigation is a pure lookup; a hit produces the scripted
	// narrative of the target node without touching the generation pipeline.
	nextActivity := activity
	var reply string
	if next, ok := flow.Navigate(activity, text, s.forumReturnTo(ctx, sess.ID)); ok {
		node, _ := flow.Get(next)
		nextActivity = node.ID
		reply = node.Narrative
	} else {
		reply = s.generateReply(ctx, sess.ID, text)
	}

	mu.Lock()
	defer mu.Unlock()

	msg, err := repo.AppendMessage(ctx, s.DB, sess.ID, domain.RoleAssistant, assistantCharacter, reply, nextActivity, "")
	if err != nil {
		return nil, err
	}
	if nextActivity != sess.CurrentActivity {
		if _, err := repo.MarkActivityStarted(ctx, s.DB, sess.ID, nextActivity); err != nil {
			return nil, err
		}
	}
	if err := repo.UpdateSessionActivity(ctx, s.DB, sess.ID, userID, nextActivity); err != nil {
		return nil, err
	}
	return msg, nil
}

// generateReply runs the fallback chain: full pipeline with bounded history,
// then a bare-question retry, then the fixed apology. It always returns text.
func (s *SessionService) generateReply(ctx context.Context, sessionID, text string) string {
	history, err := s.recentHistory(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("history load failed, answering without history")
		history = nil
	}

	ans := s.Pipeline.Answer(ctx, text, history)
	if ans.Failure == "" {
		return ans.Text
	}

	log.Warn().Str("class", string(ans.Failure)).Str("session_id", sessionID).
		Msg("generation with history failed, retrying bare question")
	ans = s.Pipeline.Answer(ctx, text, nil)
	if ans.Failure == "" {
		return ans.Text
	}
	if ans.Text != "" {
		return ans.Text
	}
	return fixedApology
}

// recentHistory loads the newest turns for prompt composition, excluding
// system rows. The just-persisted learner message is dropped from the tail so
// it is not duplicated next to the question.
func (s *SessionService) recentHistory(ctx context.Context, sessionID string) ([]rag.HistoryTurn, error) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = rag.DefaultHistoryLimit
	}
	msgs, err := repo.ListRecentMessages(ctx, s.DB, sessionID, limit+1)
	if err != nil {
		return nil, err
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == domain.RoleUser {
		msgs = msgs[:n-1]
	}
	out := make([]rag.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, rag.HistoryTurn{Role: m.Role, Text: m.Content})
	}
	return out, nil
}

// forumReturnTo finds the node the forum should return to: the activity of
// the most recent message outside the forum. Empty when there is none; the
// navigation table then falls back to the entry node.
func (s *SessionService) forumReturnTo(ctx context.Context, sessionID string) string {
	msgs, err := repo.ListRecentMessages(ctx, s.DB, sessionID, 50)
	if err != nil {
		return ""
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ActivityID != flow.ForumID {
			return msgs[i].ActivityID
		}
	}
	return ""
}

// SetSessionStatus applies an explicit lifecycle signal from the client.
// Status must be one of active, paused, completed; completed is terminal and
// its first completion timestamp is preserved on repeat signals. A completed
// session never transitions back.
func (s *SessionService) SetSessionStatus(ctx context.Context, userID, sessionRef, status string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SetSessionStatus",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("session.status", status),
		),
	)
	defer span.End()

	switch status {
	case domain.SessionActive, domain.SessionPaused, domain.SessionCompleted:
	default:
		return nil, ErrInvalidStatus
	}

	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.SessionCompleted && status != domain.SessionCompleted {
		return nil, ErrInvalidStatus
	}

	if err := repo.UpdateSessionStatus(ctx, s.DB, sess.ID, userID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return repo.GetSession(ctx, s.DB, sess.ID, userID)
}

// Canonical returns the learner's canonical session, the most recently
// updated one.
func (s *SessionService) Canonical(ctx context.Context, userID string) (*domain.ChatSession, error) {
	sess, err := repo.CanonicalSession(ctx, s.DB, userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Sessions lists the learner's sessions, most recently updated first. The
// first entry is the canonical one.
func (s *SessionService) Sessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	return repo.ListSessions(ctx, s.DB, userID)
}

// SessionTranscript returns one page of the transcript in sequence order plus
// the total message count. Page numbering starts at 1; pageSize is clamped to
// [1, 100].
func (s *SessionService) SessionTranscript(ctx context.Context, userID, sessionRef string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SessionTranscript",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, sess.ID)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := repo.ListMessagesPage(ctx, s.DB, sess.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}
