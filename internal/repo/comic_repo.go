// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file tracks comic reading progress.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// UpsertComicProgress records the furthest page a learner has reached in one
// comic episode. LastPage only moves forward: reporting an earlier page keeps
// the stored value. Finish, once set, stays set.
func UpsertComicProgress(ctx context.Context, db *gorm.DB, userID, comicSlug, episodeSlug string, page int, finish bool) (*domain.ComicProgress, error) {
	now := time.Now().UTC()
	var rec domain.ComicProgress

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND comic_slug = ? AND episode_slug = ?", userID, comicSlug, episodeSlug).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = domain.ComicProgress{
				ID:          uuid.NewString(),
				UserID:      userID,
				ComicSlug:   comicSlug,
				EpisodeSlug: episodeSlug,
				LastPage:    page,
				Finish:      finish,
				UpdatedAt:   now,
			}
			if cerr := tx.Create(&rec).Error; cerr != nil {
				if !isUniqueViolation(cerr) {
					return cerr
				}
				if err := tx.Where("user_id = ? AND comic_slug = ? AND episode_slug = ?", userID, comicSlug, episodeSlug).
					First(&rec).Error; err != nil {
					return err
				}
			} else {
				return nil
			}
		} else if err != nil {
			return err
		}
		if page > rec.LastPage {
			rec.LastPage = page
		}
		if finish {
			rec.Finish = true
		}
		rec.UpdatedAt = now
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetComicProgress fetches one episode's progress row, or ErrNotFound.
func GetComicProgress(ctx context.Context, db *gorm.DB, userID, comicSlug, episodeSlug string) (*domain.ComicProgress, error) {
	var rec domain.ComicProgress
	err := db.WithContext(ctx).
		Where("user_id = ? AND comic_slug = ? AND episode_slug = ?", userID, comicSlug, episodeSlug).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListComicProgress returns every episode row the learner has touched in one
// comic, ordered by episode slug.
func ListComicProgress(ctx context.Context, db *gorm.DB, userID, comicSlug string) ([]domain.ComicProgress, error) {
	var out []domain.ComicProgress
	err := db.WithContext(ctx).
		Where("user_id = ? AND comic_slug = ?", userID, comicSlug).
		Order("episode_slug ASC").
		Find(&out).Error
	return out, err
}
