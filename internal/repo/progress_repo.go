// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file tracks per-activity completion state and the
// denormalized per-session aggregate.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// MarkActivityStarted upserts the (session, activity) progress row with at
// least started status. Completed rows are left untouched apart from the
// access timestamp: status never regresses.
func MarkActivityStarted(ctx context.Context, db *gorm.DB, sessionID, activityID string) (*domain.ActivityProgress, error) {
	now := time.Now().UTC()
	var rec domain.ActivityProgress

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("session_id = ? AND activity_id = ?", sessionID, activityID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.ActivityProgress{
				ID:             uuid.NewString(),
				SessionID:      sessionID,
				ActivityID:     activityID,
				Status:         domain.ActivityStarted,
				LastAccessedAt: now,
			}
			if cerr := tx.Create(&rec).Error; cerr != nil {
				if !isUniqueViolation(cerr) {
					return cerr
				}
				if err := tx.Where("session_id = ? AND activity_id = ?", sessionID, activityID).
					First(&rec).Error; err != nil {
					return err
				}
			} else {
				return nil
			}
		} else if err != nil {
			return err
		}
		rec.LastAccessedAt = now
		if rec.Status == domain.ActivityLocked {
			rec.Status = domain.ActivityStarted
		}
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkActivityCompleted upserts the progress row to completed. Re-completing
// is a no-op for CompletedAt: the first timestamp is kept.
func MarkActivityCompleted(ctx context.Context, db *gorm.DB, sessionID, activityID string) (*domain.ActivityProgress, error) {
	now := time.Now().UTC()
	var rec domain.ActivityProgress

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("session_id = ? AND activity_id = ?", sessionID, activityID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.ActivityProgress{
				ID:             uuid.NewString(),
				SessionID:      sessionID,
				ActivityID:     activityID,
				Status:         domain.ActivityCompleted,
				LastAccessedAt: now,
				CompletedAt:    &now,
			}
			if cerr := tx.Create(&rec).Error; cerr != nil {
				if !isUniqueViolation(cerr) {
					return cerr
				}
				if err := tx.Where("session_id = ? AND activity_id = ?", sessionID, activityID).
					First(&rec).Error; err != nil {
					return err
				}
			} else {
				return nil
			}
		} else if err != nil {
			return err
		}
		rec.LastAccessedAt = now
		rec.Status = domain.ActivityCompleted
		if rec.CompletedAt == nil {
			rec.CompletedAt = &now
		}
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListActivityProgress returns all progress rows for a session keyed by
// activity ID.
func ListActivityProgress(ctx context.Context, db *gorm.DB, sessionID string) (map[string]domain.ActivityProgress, error) {
	var rows []domain.ActivityProgress
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ActivityProgress, len(rows))
	for _, r := range rows {
		out[r.ActivityID] = r
	}
	return out, nil
}

// RecomputeUserProgress refreshes the denormalized per-session aggregate:
// TotalAnswers is re-counted from submitted answers and CurrentActivity is
// copied from the session row. The upsert is transactional so concurrent
// submissions converge on the count rather than racing increments.
func RecomputeUserProgress(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.UserProgress, error) {
	now := time.Now().UTC()
	var agg domain.UserProgress

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session domain.ChatSession
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
			return err
		}
		var total int64
		if err := tx.Model(&domain.AnswerRecord{}).
			Where("session_id = ? AND is_submitted = ?", sessionID, true).
			Count(&total).Error; err != nil {
			return err
		}

		err := tx.Where("user_id = ? AND session_id = ?", userID, sessionID).First(&agg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			agg = domain.UserProgress{
				ID:        uuid.NewString(),
				UserID:    userID,
				SessionID: sessionID,
				CreatedAt: now,
			}
		} else if err != nil {
			return err
		}
		agg.CurrentActivity = session.CurrentActivity
		agg.TotalAnswers = total
		agg.CompletedAt = session.CompletedAt
		agg.UpdatedAt = now
		return tx.Save(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// GetUserProgress fetches the aggregate row for a session, or ErrNotFound.
func GetUserProgress(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.UserProgress, error) {
	var agg domain.UserProgress
	err := db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		First(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
