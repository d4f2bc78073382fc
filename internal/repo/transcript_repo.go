// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Transcript model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
)

// NewTranscript describes a transcript to be inserted.
type NewTranscript struct {
	UserID   string
	TaskID   *string
	Title    string
	FileName string
	AudioURL string
	Text     string
	Minutes  float64
	Language string
}

// CreateTranscript inserts a transcript row.
func CreateTranscript(ctx context.Context, db *gorm.DB, in NewTranscript) (*domain.Transcript, error) {
	now := time.Now().UTC()
	t := &domain.Transcript{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		TaskID:    in.TaskID,
		Title:     in.Title,
		FileName:  in.FileName,
		AudioURL:  in.AudioURL,
		Text:      in.Text,
		Minutes:   in.Minutes,
		Language:  in.Language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTranscript fetches a transcript by id, scoped to its owner.
func GetTranscript(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Transcript, error) {
	var t domain.Transcript
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTranscripts returns the number of transcripts owned by userID.
func CountTranscripts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transcript{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ListTranscripts returns a page of transcripts newest first.
func ListTranscripts(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transcript, error) {
	var out []domain.Transcript
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListTranscriptsPage returns one page and the total count.
func ListTranscriptsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transcript, int64, error) {
	total, err := CountTranscripts(ctx, db, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transcript{}, 0, nil
	}
	items, err := ListTranscripts(ctx, db, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListRecentTranscripts returns up to limit transcripts owned by userID,
// newest first. limit <= 0 returns all of them. Used to build the in-memory
// search index.
func ListRecentTranscripts(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Transcript, error) {
	var out []domain.Transcript
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
