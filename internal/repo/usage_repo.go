// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the usage ledger queries.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
)

// CreateUsage appends an immutable usage record. taskID may be nil for
// synchronous transcriptions. A second charge for the same task yields
// ErrDuplicate.
func CreateUsage(ctx context.Context, db *gorm.DB, userID, transcriptID string, taskID *string, minutes float64) (*domain.UsageRecord, error) {
	r := &domain.UsageRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		TranscriptID: transcriptID,
		TaskID:       taskID,
		Minutes:      minutes,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// SumUsageSince returns the minutes charged to userID at or after since.
func SumUsageSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Select("COALESCE(SUM(minutes), 0)").
		Row().
		Scan(&total)
	return total, err
}

// ListUsage returns a user's usage records newest first.
func ListUsage(ctx context.Context, db *gorm.DB, userID string) ([]domain.UsageRecord, error) {
	var out []domain.UsageRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
