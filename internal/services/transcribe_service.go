// Package services – TranscribeService
//
// TranscribeService is the blocking variant of task processing: the caller
// waits for fetch, engine call, and commit in one request. It shares the
// atomic commit with TaskService, so a transcript and its usage record are
// written together or not at all.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/engine"
	"github.com/tbourn/go-transcribe-backend/internal/observability"
	"github.com/tbourn/go-transcribe-backend/internal/storage"
)

// Result is returned by a successful synchronous transcription.
type Result struct {
	Text         string
	Minutes      float64
	Language     string
	TranscriptID string
}

// TranscribeService runs synchronous transcriptions.
type TranscribeService struct {
	DB      *gorm.DB
	Quota   *QuotaService
	Locks   *UserLocks
	Fetcher storage.Fetcher
	Engine  engine.Engine
}

// Transcribe fetches the audio, calls the engine, and charges the user. It
// returns ErrMissingAudio, ErrQuotaExceeded, or an error wrapping ErrUpstream
// for the expected failure modes. Nothing is written unless it succeeds.
func (s *TranscribeService) Transcribe(ctx context.Context, userID string, ref AudioRef) (*Result, error) {
	tr := otel.Tracer("services/TranscribeService")
	ctx, span := tr.Start(ctx, "Transcribe",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	ref, err := ref.normalized()
	if err != nil {
		return nil, err
	}

	audio, err := s.Fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		span.RecordError(err)
		observability.RecordTranscription(observability.ModeSync, observability.OutcomeFailed, 0)
		return nil, fmt.Errorf("%w: fetch audio: %w", ErrUpstream, err)
	}

	start := time.Now()
	res, err := s.Engine.Transcribe(ctx, audio, ref.FileName)
	observability.ObserveEngine(time.Since(start))
	if err != nil {
		span.RecordError(err)
		observability.RecordTranscription(observability.ModeSync, observability.OutcomeFailed, 0)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	span.SetAttributes(attribute.Float64("minutes", res.Minutes()))

	c := committer{DB: s.DB, Quota: s.Quota, Locks: s.Locks}
	t, err := c.commit(ctx, commitInput{UserID: userID, Audio: ref, Result: res})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			observability.RecordTranscription(observability.ModeSync, observability.OutcomeQuota, 0)
			return nil, err
		}
		span.RecordError(err)
		observability.RecordTranscription(observability.ModeSync, observability.OutcomeFailed, 0)
		return nil, err
	}

	observability.RecordTranscription(observability.ModeSync, observability.OutcomeCompleted, res.Minutes())
	return &Result{
		Text:         res.Text,
		Minutes:      t.Minutes,
		Language:     res.Language,
		TranscriptID: t.ID,
	}, nil
}
