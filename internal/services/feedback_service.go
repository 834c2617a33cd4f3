// Package services – FeedbackService
//
// Stores free-form feedback from visitors. Anonymous submissions are allowed;
// only the message body is required.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/repo"
)

// FeedbackService manages visitor feedback.
type FeedbackService struct {
	DB *gorm.DB

	// MaxMessageRunes caps the message length. 0 disables the check.
	MaxMessageRunes int
}

// NewFeedbackService constructs a FeedbackService.
func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{DB: db, MaxMessageRunes: 4000}
}

// Submit validates and stores a feedback message.
func (s *FeedbackService) Submit(ctx context.Context, name, email, message string) (*domain.Feedback, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyFeedback
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}
	return repo.CreateFeedback(ctx, s.DB, strings.TrimSpace(name), strings.TrimSpace(email), message)
}

// List returns recent feedback, newest first.
func (s *FeedbackService) List(ctx context.Context, limit int) ([]domain.Feedback, error) {
	return repo.ListFeedback(ctx, s.DB, limit)
}
