package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

func answerInput(sessionID string, submit bool) AnswerUpsertInput {
	return AnswerUpsertInput{
		SessionID:    sessionID,
		QuestionID:   "q_kegiatan_1",
		StorageKey:   "answer:kegiatan_1",
		AnswerText:   "Limbah harus dicegah sejak awal.",
		AnswerType:   "essay",
		QuestionText: "Apa prinsip pertama kimia hijau?",
		ActivityID:   "kegiatan_1",
		Submit:       submit,
	}
}

func TestUpsertAnswer_CreateThenUpdate(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, "u1", "sess", "kegiatan_1")

	rec, outcome, err := UpsertAnswer(ctx, db, answerInput(s.ID, true))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if outcome != AnswerCreated {
		t.Fatalf("outcome = %q, want %q", outcome, AnswerCreated)
	}
	if !rec.IsSubmitted || rec.SubmittedAt == nil {
		t.Fatalf("submit flags not set: %+v", rec)
	}

	in := answerInput(s.ID, true)
	in.AnswerText = "Jawaban yang sudah direvisi."
	rec2, outcome, err := UpsertAnswer(ctx, db, in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if outcome != AnswerUpdated {
		t.Fatalf("outcome = %q, want %q", outcome, AnswerUpdated)
	}
	if rec2.ID != rec.ID {
		t.Fatalf("row identity changed: %s -> %s", rec.ID, rec2.ID)
	}
	if rec2.AnswerText != "Jawaban yang sudah direvisi." {
		t.Fatalf("text not replaced: %q", rec2.AnswerText)
	}

	var total int64
	if err := db.Model(&domain.AnswerRecord{}).Count(&total).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("rows = %d, want 1 (no duplicates on resubmission)", total)
	}
}

func TestUpsertAnswer_DraftThenSubmit(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, "u1", "sess", "kegiatan_1")

	draft, _, err := UpsertAnswer(ctx, db, answerInput(s.ID, false))
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.IsSubmitted || draft.SubmittedAt != nil {
		t.Fatalf("draft should not be submitted: %+v", draft)
	}

	final, _, err := UpsertAnswer(ctx, db, answerInput(s.ID, true))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !final.IsSubmitted || final.SubmittedAt == nil {
		t.Fatalf("submit flags missing: %+v", final)
	}
}

func TestUpsertAnswer_SameQuestionDifferentSessions(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	ctx := context.Background()

	a, _ := CreateSession(ctx, db, "u1", "a", "kegiatan_1")
	b, _ := CreateSession(ctx, db, "u1", "b", "kegiatan_1")

	if _, _, err := UpsertAnswer(ctx, db, answerInput(a.ID, true)); err != nil {
		t.Fatalf("session a: %v", err)
	}
	_, outcome, err := UpsertAnswer(ctx, db, answerInput(b.ID, true))
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	if outcome != AnswerCreated {
		t.Fatalf("outcome = %q, want created in a distinct session", outcome)
	}
}

func TestGetAnswer_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	if _, err := GetAnswer(context.Background(), db, "nope", "q"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountSubmittedAnswers_IgnoresDrafts(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, "u1", "sess", "kegiatan_1")

	in := answerInput(s.ID, true)
	if _, _, err := UpsertAnswer(ctx, db, in); err != nil {
		t.Fatalf("submitted: %v", err)
	}
	draft := answerInput(s.ID, false)
	draft.QuestionID = "q_kegiatan_2"
	draft.ActivityID = "kegiatan_2"
	if _, _, err := UpsertAnswer(ctx, db, draft); err != nil {
		t.Fatalf("draft: %v", err)
	}

	total, err := CountSubmittedAnswers(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("submitted count = %d, want 1", total)
	}
}

func TestListAnswersByActivity(t *testing.T) {
	db := newRepoDB(t, &domain.ChatSession{}, &domain.AnswerRecord{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, "u1", "sess", "kegiatan_1")
	first := answerInput(s.ID, true)
	second := answerInput(s.ID, true)
	second.QuestionID = "q_kegiatan_2"
	second.ActivityID = "kegiatan_2"
	UpsertAnswer(ctx, db, first)
	UpsertAnswer(ctx, db, second)

	got, err := ListAnswersByActivity(ctx, db, s.ID, "kegiatan_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].QuestionID != "q_kegiatan_1" {
		t.Fatalf("unexpected slice: %+v", got)
	}
}
