// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file persists corpus embeddings so the semantic
// retriever can rebuild without re-embedding on every start.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// ListKnowledgeVectors returns all stored embeddings in corpus order.
func ListKnowledgeVectors(ctx context.Context, db *gorm.DB) ([]domain.KnowledgeVector, error) {
	var out []domain.KnowledgeVector
	err := db.WithContext(ctx).Order("doc_order ASC").Find(&out).Error
	return out, err
}

// ReplaceKnowledgeVectors swaps the whole embedding table for a fresh corpus
// build, in one transaction so readers never observe a half-written corpus.
func ReplaceKnowledgeVectors(ctx context.Context, db *gorm.DB, vectors []domain.KnowledgeVector) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.KnowledgeVector{}).Error; err != nil {
			return err
		}
		for i := range vectors {
			if vectors[i].ID == "" {
				vectors[i].ID = uuid.NewString()
			}
			if err := tx.Create(&vectors[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CountKnowledgeVectors reports how many embeddings are stored.
func CountKnowledgeVectors(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.KnowledgeVector{}).Count(&total).Error
	return total, err
}
