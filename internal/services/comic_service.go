// Package services – ComicService
//
// Tracks how far a learner has read each comic episode. LastPage never moves
// backwards, and finishing an episode is gated on a minimum page threshold
// unless the client explicitly marks it complete.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/repo"
)

// RequiredPageThreshold is the minimum page a learner must reach before an
// episode can be marked finished.
const RequiredPageThreshold = 3

// ComicService manages comic reading progress.
type ComicService struct {
	DB *gorm.DB

	// Threshold overrides RequiredPageThreshold when positive.
	Threshold int
}

// NewComicService constructs a ComicService with the default threshold.
func NewComicService(db *gorm.DB) *ComicService {
	return &ComicService{DB: db, Threshold: RequiredPageThreshold}
}

func (s *ComicService) threshold() int {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return RequiredPageThreshold
}

// RecordPage stores the furthest page reached. Backward reports keep the
// stored value.
func (s *ComicService) RecordPage(ctx context.Context, userID, comicSlug, episodeSlug string, page int) (*domain.ComicProgress, error) {
	if page < 0 {
		page = 0
	}
	return repo.UpsertComicProgress(ctx, s.DB, userID, comicSlug, episodeSlug, page, false)
}

// Finish marks the episode finished. Below the page threshold the request is
// refused with ErrComicBelowThreshold; once finished, the flag is sticky.
func (s *ComicService) Finish(ctx context.Context, userID, comicSlug, episodeSlug string) (*domain.ComicProgress, error) {
	existing, err := repo.GetComicProgress(ctx, s.DB, userID, comicSlug, episodeSlug)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrComicBelowThreshold
	}
	if err != nil {
		return nil, err
	}
	if existing.LastPage < s.threshold() {
		return nil, ErrComicBelowThreshold
	}
	return repo.UpsertComicProgress(ctx, s.DB, userID, comicSlug, episodeSlug, existing.LastPage, true)
}

// Progress returns all episode rows for one comic.
func (s *ComicService) Progress(ctx context.Context, userID, comicSlug string) ([]domain.ComicProgress, error) {
	return repo.ListComicProgress(ctx, s.DB, userID, comicSlug)
}
