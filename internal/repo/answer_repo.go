// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the idempotent answer upsert keyed on
// (session_id, question_id).
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// Upsert outcomes reported to the caller so the HTTP layer can distinguish
// a first submission from a revision.
const (
	AnswerCreated = "created"
	AnswerUpdated = "updated"
)

// AnswerUpsertInput carries the fields written on both insert and update.
type AnswerUpsertInput struct {
	SessionID    string
	QuestionID   string
	StorageKey   string
	AnswerText   string
	AnswerType   string
	QuestionText string
	ActivityID   string
	ImageRef     string
	Submit       bool
}

// UpsertAnswer inserts or replaces the learner's answer to one question,
// inside a transaction. Resubmission overwrites the text in place and keeps
// the row's identity; SubmittedAt is stamped on the first submit and advanced
// on each later submit. Returns the row plus AnswerCreated or AnswerUpdated.
func UpsertAnswer(ctx context.Context, db *gorm.DB, in AnswerUpsertInput) (*domain.AnswerRecord, string, error) {
	now := time.Now().UTC()
	var rec domain.AnswerRecord
	outcome := AnswerCreated

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("session_id = ? AND question_id = ?", in.SessionID, in.QuestionID).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = domain.AnswerRecord{
				ID:           uuid.NewString(),
				SessionID:    in.SessionID,
				QuestionID:   in.QuestionID,
				StorageKey:   in.StorageKey,
				AnswerText:   in.AnswerText,
				AnswerType:   in.AnswerType,
				QuestionText: in.QuestionText,
				ActivityID:   in.ActivityID,
				ImageRef:     in.ImageRef,
				IsSubmitted:  in.Submit,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if in.Submit {
				rec.SubmittedAt = &now
			}
			if err := tx.Create(&rec).Error; err != nil {
				// A concurrent insert won the unique index; fall through to update.
				if !isUniqueViolation(err) {
					return err
				}
				if err := tx.Where("session_id = ? AND question_id = ?", in.SessionID, in.QuestionID).
					First(&rec).Error; err != nil {
					return err
				}
			} else {
				return nil
			}
			fallthrough
		case err == nil:
			outcome = AnswerUpdated
			rec.AnswerText = in.AnswerText
			rec.AnswerType = in.AnswerType
			rec.StorageKey = in.StorageKey
			rec.QuestionText = in.QuestionText
			rec.ActivityID = in.ActivityID
			if in.ImageRef != "" {
				rec.ImageRef = in.ImageRef
			}
			if in.Submit {
				rec.IsSubmitted = true
				rec.SubmittedAt = &now
			}
			rec.UpdatedAt = now
			return tx.Save(&rec).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, "", err
	}
	return &rec, outcome, nil
}

// GetAnswer fetches the stored answer for one question in a session, or
// ErrNotFound.
func GetAnswer(ctx context.Context, db *gorm.DB, sessionID, questionID string) (*domain.AnswerRecord, error) {
	var rec domain.AnswerRecord
	err := db.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAnswers returns all answers for a session, oldest first.
func ListAnswers(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.AnswerRecord, error) {
	var out []domain.AnswerRecord
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListAnswersByActivity returns the answers recorded for one activity.
func ListAnswersByActivity(ctx context.Context, db *gorm.DB, sessionID, activityID string) ([]domain.AnswerRecord, error) {
	var out []domain.AnswerRecord
	err := db.WithContext(ctx).
		Where("session_id = ? AND activity_id = ?", sessionID, activityID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountSubmittedAnswers counts submitted answers for a session. The aggregate
// progress view recomputes from this, never increments.
func CountSubmittedAnswers(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.AnswerRecord{}).
		Where("session_id = ? AND is_submitted = ?", sessionID, true).
		Count(&total).Error
	return total, err
}
