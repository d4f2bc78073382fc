// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// TranscriptionTask model.
//
// Status changes are guarded in SQL: a terminal update only applies to a row
// that is still pending, so two concurrent finishers cannot both win.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
)

// ErrTaskNotPending is returned when a terminal update targets a task that
// has already left the pending state.
var ErrTaskNotPending = errors.New("task is not pending")

// CreateTask inserts a pending task for userID.
func CreateTask(ctx context.Context, db *gorm.DB, userID, audioURL, fileName string) (*domain.TranscriptionTask, error) {
	now := time.Now().UTC()
	t := &domain.TranscriptionTask{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.TaskPending,
		AudioURL:  audioURL,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches a task by id.
func GetTask(ctx context.Context, db *gorm.DB, id string) (*domain.TranscriptionTask, error) {
	var t domain.TranscriptionTask
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TaskOutcome carries the fields written by a terminal transition.
type TaskOutcome struct {
	Status   domain.TaskStatus
	Text     *string
	Minutes  *float64
	Language *string
	Error    *string
}

// FinishTask moves a pending task to a terminal status. It returns
// ErrNotFound when the task does not exist and ErrTaskNotPending when it
// was already finalized.
func FinishTask(ctx context.Context, db *gorm.DB, id string, out TaskOutcome) error {
	if !domain.TaskPending.CanTransition(out.Status) {
		return fmt.Errorf("invalid task transition to %q", out.Status)
	}
	res := db.WithContext(ctx).
		Model(&domain.TranscriptionTask{}).
		Where("id = ? AND status = ?", id, domain.TaskPending).
		Updates(map[string]any{
			"status":     out.Status,
			"text":       out.Text,
			"minutes":    out.Minutes,
			"language":   out.Language,
			"error":      out.Error,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.TranscriptionTask{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrTaskNotPending
}

// ListPendingTaskIDs returns ids of pending tasks, oldest first, capped at
// limit when limit > 0.
func ListPendingTaskIDs(ctx context.Context, db *gorm.DB, limit int) ([]string, error) {
	q := db.WithContext(ctx).
		Model(&domain.TranscriptionTask{}).
		Where("status = ?", domain.TaskPending).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	err := q.Pluck("id", &ids).Error
	return ids, err
}

// ListTasks returns a user's tasks newest first.
func ListTasks(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.TranscriptionTask, error) {
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.TranscriptionTask
	err := q.Find(&out).Error
	return out, err
}
