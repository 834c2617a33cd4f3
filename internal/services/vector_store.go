// Package services – GormVectorStore
//
// Adapts the knowledge_vectors table to the rag.VectorStore contract so the
// semantic retriever can rebuild from persisted embeddings without knowing
// about GORM. Embeddings are stored as JSON float arrays.
package services

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"
)

// GormVectorStore persists retriever embeddings through the repo layer.
type GormVectorStore struct {
	DB *gorm.DB
}

// Load decodes every stored embedding in corpus order.
func (s *GormVectorStore) Load(ctx context.Context) ([]rag.StoredVector, error) {
	rows, err := repo.ListKnowledgeVectors(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]rag.StoredVector, 0, len(rows))
	for _, r := range rows {
		var embedding []float32
		if err := json.Unmarshal([]byte(r.Embedding), &embedding); err != nil {
			return nil, err
		}
		var metadata map[string]string
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, rag.StoredVector{
			DocOrder:  r.DocOrder,
			Content:   r.Content,
			Metadata:  metadata,
			Embedding: embedding,
			Model:     r.Model,
		})
	}
	return out, nil
}

// Replace swaps the whole persisted corpus for a fresh build.
func (s *GormVectorStore) Replace(ctx context.Context, vectors []rag.StoredVector) error {
	rows := make([]domain.KnowledgeVector, 0, len(vectors))
	for _, v := range vectors {
		embedding, err := json.Marshal(v.Embedding)
		if err != nil {
			return err
		}
		row := domain.KnowledgeVector{
			DocOrder:  v.DocOrder,
			Content:   v.Content,
			Embedding: string(embedding),
			Model:     v.Model,
		}
		if len(v.Metadata) > 0 {
			metadata, err := json.Marshal(v.Metadata)
			if err != nil {
				return err
			}
			row.Metadata = string(metadata)
		}
		rows = append(rows, row)
	}
	return repo.ReplaceKnowledgeVectors(ctx, s.DB, rows)
}
