// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores visitor feedback.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// CreateFeedback inserts one feedback row. Name and email may be empty.
func CreateFeedback(ctx context.Context, db *gorm.DB, name, email, message string) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// ListFeedback returns feedback rows, newest first. A limit of 0 returns all.
func ListFeedback(ctx context.Context, db *gorm.DB, limit int) ([]domain.Feedback, error) {
	var out []domain.Feedback
	q := db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
