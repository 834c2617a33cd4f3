// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatMessage
// model. The transcript is append-only; per-session sequence numbers are
// assigned here and protected by the ux_session_seq unique index.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenverse/ecombot-backend/internal/domain"
)

// AppendMessage inserts the next message for a session inside a transaction,
// assigning Seq = max(seq)+1. The unique index on (session_id, seq) turns a
// lost race into a constraint error instead of a silent gap; callers serialize
// writers per session, so a violation here indicates a bug, not normal flow.
func AppendMessage(ctx context.Context, db *gorm.DB, sessionID, role, character, content, activityID, payload string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       role,
		Character:  character,
		Content:    content,
		ActivityID: activityID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Raw("SELECT COALESCE(MAX(seq), 0) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&maxSeq).Error; err != nil {
			return err
		}
		m.Seq = maxSeq + 1
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns messages ordered by sequence number ascending.
// A limit of 0 returns the full transcript.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListMessagesByActivity returns the transcript slice for one activity,
// ordered by sequence number.
func ListMessagesByActivity(ctx context.Context, db *gorm.DB, sessionID, activityID string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ? AND activity_id = ?", sessionID, activityID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// ListRecentMessages returns the newest n messages in chronological order,
// for folding into a generation prompt.
func ListRecentMessages(ctx context.Context, db *gorm.DB, sessionID string, n int) ([]domain.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// reverse into ascending order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated transcript slice ordered by sequence
// number. The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
