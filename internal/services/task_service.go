// Package services – TaskService
//
// TaskService owns the asynchronous transcription lifecycle. A task is
// created pending and handed to a Dispatcher; Process later moves it to
// exactly one terminal state. The pending guard is enforced both in Go and in
// the conditional UPDATE issued by the repository, so concurrent or repeated
// processing can finalize a task at most once.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/engine"
	"github.com/tbourn/go-transcribe-backend/internal/observability"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
	"github.com/tbourn/go-transcribe-backend/internal/storage"
)

// TaskIdempotencyScope namespaces Idempotency-Key values for task creation.
const TaskIdempotencyScope = "transcription_tasks"

const defaultFailureWriteTimeout = 5 * time.Second

// Dispatcher accepts task ids for background processing. Enqueue must not
// block.
type Dispatcher interface {
	Enqueue(taskID string) error
}

// TaskService creates, processes, and reports transcription tasks.
type TaskService struct {
	DB      *gorm.DB
	Quota   *QuotaService
	Locks   *UserLocks
	Fetcher storage.Fetcher
	Engine  engine.Engine

	// Dispatcher is usually the worker pool. It is assigned after
	// construction because the pool itself calls back into Process.
	Dispatcher Dispatcher

	IdempotencyTTL      time.Duration
	FailureWriteTimeout time.Duration
}

// Create inserts a pending task and dispatches it. Dispatch failures are
// logged only; the task stays pending and is picked up by ResumePending.
func (s *TaskService) Create(ctx context.Context, userID string, ref AudioRef) (*domain.TranscriptionTask, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	ref, err := ref.normalized()
	if err != nil {
		return nil, err
	}
	task, err := repo.CreateTask(ctx, s.DB, userID, ref.URL, ref.FileName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	s.dispatch(task.ID)
	return task, nil
}

// CreateIdempotent behaves like Create but returns the task created by an
// earlier request carrying the same key. replayed reports that case.
func (s *TaskService) CreateIdempotent(ctx context.Context, userID, key string, ref AudioRef) (task *domain.TranscriptionTask, replayed bool, err error) {
	if key == "" {
		task, err = s.Create(ctx, userID, ref)
		return task, false, err
	}

	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "CreateIdempotent",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("idempotency.key", key),
		),
	)
	defer span.End()

	if t, ok, err := s.replay(ctx, userID, key); err != nil || ok {
		return t, ok, err
	}

	ref, err = ref.normalized()
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		task, err = s.createWithKey(ctx, userID, key, ref)
		if !errors.Is(err, repo.ErrDuplicate) {
			break
		}
		// A concurrent request won, or an expired record still holds the key.
		if t, ok, rerr := s.replay(ctx, userID, key); rerr != nil || ok {
			return t, ok, rerr
		}
		if _, perr := repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now()); perr != nil {
			return nil, false, perr
		}
	}
	if err != nil {
		return nil, false, err
	}

	s.dispatch(task.ID)
	return task, false, nil
}

func (s *TaskService) createWithKey(ctx context.Context, userID, key string, ref AudioRef) (*domain.TranscriptionTask, error) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	var task *domain.TranscriptionTask
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.CreateTask(ctx, tx, userID, ref.URL, ref.FileName)
		if err != nil {
			return err
		}
		if _, err := repo.CreateIdempotency(ctx, tx, userID, TaskIdempotencyScope, key, t.ID, http.StatusAccepted, ttl); err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

func (s *TaskService) replay(ctx context.Context, userID, key string) (*domain.TranscriptionTask, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, TaskIdempotencyScope, key, time.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, err := repo.GetTask(ctx, s.DB, rec.ResourceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, ErrTaskNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *TaskService) dispatch(taskID string) {
	if s.Dispatcher == nil {
		log.Warn().Str("task_id", taskID).Msg("no dispatcher configured; task left pending")
		return
	}
	if err := s.Dispatcher.Enqueue(taskID); err != nil {
		observability.RecordQueueRejected()
		log.Error().Err(err).Str("task_id", taskID).Msg("task dispatch failed")
	}
}

// Process runs one pending task to a terminal state. It returns
// ErrTaskNotFound, ErrTaskFinalized, ErrQuotaExceeded, or an error wrapping
// ErrUpstream; any other error is a storage failure.
func (s *TaskService) Process(ctx context.Context, taskID string) error {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
	defer span.End()

	task, err := repo.GetTask(ctx, s.DB, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTaskNotFound
		}
		return err
	}
	if task.Status.Terminal() {
		return ErrTaskFinalized
	}
	span.SetAttributes(attribute.String("user.id", task.UserID))

	audio, err := s.Fetcher.Fetch(ctx, task.AudioURL)
	if err != nil {
		span.RecordError(err)
		s.fail(ctx, task.ID, msgProcessingFailed)
		observability.RecordTranscription(observability.ModeAsync, observability.OutcomeFailed, 0)
		return fmt.Errorf("%w: fetch audio: %w", ErrUpstream, err)
	}

	start := time.Now()
	res, err := s.Engine.Transcribe(ctx, audio, task.FileName)
	observability.ObserveEngine(time.Since(start))
	if err != nil {
		span.RecordError(err)
		s.fail(ctx, task.ID, msgProcessingFailed)
		observability.RecordTranscription(observability.ModeAsync, observability.OutcomeFailed, 0)
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	c := committer{DB: s.DB, Quota: s.Quota, Locks: s.Locks}
	id := task.ID
	_, err = c.commit(ctx, commitInput{
		UserID: task.UserID,
		TaskID: &id,
		Audio:  AudioRef{URL: task.AudioURL, FileName: task.FileName},
		Result: res,
	})
	switch {
	case err == nil:
		observability.RecordTranscription(observability.ModeAsync, observability.OutcomeCompleted, res.Minutes())
		log.Info().Str("task_id", task.ID).Float64("minutes", res.Minutes()).Msg("task completed")
		return nil
	case errors.Is(err, ErrQuotaExceeded):
		s.fail(ctx, task.ID, msgQuotaExceeded)
		observability.RecordTranscription(observability.ModeAsync, observability.OutcomeQuota, 0)
		return ErrQuotaExceeded
	case errors.Is(err, ErrTaskFinalized), errors.Is(err, ErrTaskNotFound):
		return err
	default:
		span.RecordError(err)
		s.fail(ctx, task.ID, msgProcessingFailed)
		observability.RecordTranscription(observability.ModeAsync, observability.OutcomeFailed, 0)
		return err
	}
}

// fail marks the task failed without inheriting ctx's deadline, so a timed
// out task can still be finalized. Errors are logged only.
func (s *TaskService) fail(ctx context.Context, taskID, msg string) {
	timeout := s.FailureWriteTimeout
	if timeout <= 0 {
		timeout = defaultFailureWriteTimeout
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := repo.FinishTask(fctx, s.DB, taskID, repo.TaskOutcome{
		Status: domain.TaskFailed,
		Error:  &msg,
	})
	switch {
	case err == nil, errors.Is(err, repo.ErrTaskNotPending):
	case errors.Is(err, repo.ErrNotFound):
		// the owner was deleted while the task ran
		log.Debug().Str("task_id", taskID).Msg("task gone before it could be marked failed")
	default:
		log.Error().Err(err).Str("task_id", taskID).Msg("could not mark task failed")
	}
}

// Status returns the task when it belongs to userID.
func (s *TaskService) Status(ctx context.Context, userID, taskID string) (*domain.TranscriptionTask, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("task.id", taskID),
		),
	)
	defer span.End()

	task, err := repo.GetTask(ctx, s.DB, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrTaskForbidden
	}
	return task, nil
}

// ResumePending re-dispatches tasks left pending by an earlier process and
// returns how many were accepted by the dispatcher.
func (s *TaskService) ResumePending(ctx context.Context) (int, error) {
	ids, err := repo.ListPendingTaskIDs(ctx, s.DB, 0)
	if err != nil {
		return 0, err
	}
	if s.Dispatcher == nil {
		return 0, nil
	}
	n := 0
	for _, id := range ids {
		if err := s.Dispatcher.Enqueue(id); err != nil {
			log.Warn().Err(err).Str("task_id", id).Int("remaining", len(ids)-n).Msg("stopped resuming pending tasks")
			break
		}
		n++
	}
	return n, nil
}
