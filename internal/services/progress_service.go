// Package services – SessionService (answers and progress)
//
// This file implements the progress half of SessionService: idempotent answer
// upserts keyed on (session, question), activity completion, per-activity
// history, and the full-flow overview projection.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/flow"
	"github.com/greenverse/ecombot-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QuestionData is the client-supplied question descriptor accompanying an
// answer submission.
type QuestionData struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	StorageKey string `json:"storage_key"`
	ImageRef   string `json:"image_ref"`
	MaxLen     int    `json:"max_len"`
}

// AnswerResult is what SubmitActivityAnswer returns: the stored record, the
// action taken, and the recomputed aggregate.
type AnswerResult struct {
	Action   string
	Answer   *domain.AnswerRecord
	Progress *domain.UserProgress
}

// ActivityOverview is one row of the session overview projection.
type ActivityOverview struct {
	ActivityID   string `json:"activity_id"`
	Title        string `json:"title"`
	MessageCount int64  `json:"message_count"`
	AnswerCount  int64  `json:"answer_count"`
	Status       string `json:"status"`
}

// SubmitActivityAnswer upserts the learner's answer keyed by (session,
// question id), recomputes the aggregate by counting, and idempotently
// completes the activity. A descriptor without a question id gets a generated
// one; that path is logged as degraded because the client loses the stable
// resubmission key.
func (s *SessionService) SubmitActivityAnswer(ctx context.Context, userID, sessionRef, activityID string, q QuestionData, answerText, answerType string) (*AnswerResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SubmitActivityAnswer",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("activity.id", activityID),
		),
	)
	defer span.End()

	answerText = strings.TrimSpace(answerText)
	if answerText == "" {
		return nil, ErrEmptyAnswer
	}
	node, ok := flow.Get(activityID)
	if !ok {
		return nil, ErrUnknownActivity
	}
	if answerType == "" {
		answerType = "essay"
	}
	if !domain.AnswerTypeValid(answerType) {
		return nil, ErrInvalidAnswerType
	}

	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}

	questionID := strings.TrimSpace(q.ID)
	if questionID == "" {
		questionID = "generated:" + uuid.NewString()
		log.Warn().Str("session_id", sess.ID).Str("activity_id", node.ID).
			Msg("answer submitted without question id, generated one")
	}
	if desc, ok := flow.QuestionByID(questionID); ok {
		if q.StorageKey == "" {
			q.StorageKey = desc.StorageKey
		}
		if q.Text == "" {
			q.Text = desc.Prompt
		}
		if desc.MaxLen > 0 && utf8.RuneCountInString(answerText) > desc.MaxLen {
			return nil, ErrTooLong
		}
	}

	mu := s.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	rec, action, err := repo.UpsertAnswer(ctx, s.DB, repo.AnswerUpsertInput{
		SessionID:    sess.ID,
		QuestionID:   questionID,
		StorageKey:   q.StorageKey,
		AnswerText:   answerText,
		AnswerType:   answerType,
		QuestionText: q.Text,
		ActivityID:   node.ID,
		ImageRef:     q.ImageRef,
		Submit:       true,
	})
	if err != nil {
		return nil, err
	}
	if _, err := repo.MarkActivityCompleted(ctx, s.DB, sess.ID, node.ID); err != nil {
		return nil, err
	}
	agg, err := repo.RecomputeUserProgress(ctx, s.DB, userID, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := repo.TouchSession(ctx, s.DB, sess.ID); err != nil {
		return nil, err
	}

	return &AnswerResult{Action: action, Answer: rec, Progress: agg}, nil
}

// CompleteActivity is the explicit idempotent completion transition, used for
// activities without questions. Completed is terminal: re-completing keeps
// the first timestamp and never regresses status.
func (s *SessionService) CompleteActivity(ctx context.Context, userID, sessionRef, activityID string) (*domain.ActivityProgress, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "CompleteActivity",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("activity.id", activityID),
		),
	)
	defer span.End()

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

	rec, err := repo.MarkActivityCompleted(ctx, s.DB, sess.ID, node.ID)
	if err != nil {
		return nil, err
	}
	if _, err := repo.RecomputeUserProgress(ctx, s.DB, userID, sess.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetActivityHistory returns the ordered transcript slice and ordered answer
// list for one (session, activity) pair. Read-only.
func (s *SessionService) GetActivityHistory(ctx context.Context, userID, sessionRef, activityID string) ([]domain.ChatMessage, []domain.AnswerRecord, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "GetActivityHistory",
		trace.WithAttributes(attribute.String("activity.id", activityID)),
	)
	defer span.End()

	node, ok := flow.Get(activityID)
	if !ok {
		return nil, nil, ErrUnknownActivity
	}
	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := repo.ListMessagesByActivity(ctx, s.DB, sess.ID, node.ID)
	if err != nil {
		return nil, nil, err
	}
	answers, err := repo.ListAnswersByActivity(ctx, s.DB, sess.ID, node.ID)
	if err != nil {
		return nil, nil, err
	}
	return msgs, answers, nil
}

// AggregateProgress returns the learner's denormalized progress counters for
// one session. A session without an aggregate row (created before any answer
// was recorded) resolves to a fresh recompute.
func (s *SessionService) AggregateProgress(ctx context.Context, userID, sessionRef string) (*domain.UserProgress, error) {
	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}
	agg, err := repo.GetUserProgress(ctx, s.DB, userID, sess.ID)
	if err == nil {
		return agg, nil
	}
	return repo.RecomputeUserProgress(ctx, s.DB, userID, sess.ID)
}

// SavedAnswer returns the stored answer for one question in the session, so
// clients can restore a learner's draft into the form. ErrSessionNotFound when
// the session is missing; a nil record (no error) when the question was never
// answered.
func (s *SessionService) SavedAnswer(ctx context.Context, userID, sessionRef, questionID string) (*domain.AnswerRecord, error) {
	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}
	rec, err := repo.GetAnswer(ctx, s.DB, sess.ID, questionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetSessionOverview projects the whole flow: one entry per journey node with
// message count, answer count, and progress status. Nodes the session never
// touched default to not_started with zero counts.
func (s *SessionService) GetSessionOverview(ctx context.Context, userID, sessionRef string) ([]ActivityOverview, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "GetSessionOverview")
	defer span.End()

	sess, err := s.findSession(ctx, userID, sessionRef)
	if err != nil {
		return nil, err
	}

	progress, err := repo.ListActivityProgress(ctx, s.DB, sess.ID)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.ListMessages(ctx, s.DB, sess.ID, 0)
	if err != nil {
		return nil, err
	}
	answers, err := repo.ListAnswers(ctx, s.DB, sess.ID)
	if err != nil {
		return nil, err
	}

	msgCount := make(map[string]int64)
	for _, m := range msgs {
		msgCount[m.ActivityID]++
	}
	ansCount := make(map[string]int64)
	for _, a := range answers {
		ansCount[a.ActivityID]++
	}

	all := flow.All()
	out := make([]ActivityOverview, 0, len(all))
	for _, node := range all {
		status := domain.ActivityNotStarted
		if p, ok := progress[node.ID]; ok {
			status = p.Status
			if status == domain.ActivityLocked {
				status = domain.ActivityNotStarted
			}
		}
		out = append(out, ActivityOverview{
			ActivityID:   node.ID,
			Title:        flow.TitleFor(node.ID),
			MessageCount: msgCount[node.ID],
			AnswerCount:  ansCount[node.ID],
			Status:       status,
		})
	}
	return out, nil
}
