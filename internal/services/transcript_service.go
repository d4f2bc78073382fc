// Package services – TranscriptService
//
// TranscriptService serves a user's transcription history: paginated
// listing, single reads, a validator for conditional list responses, and
// passage search over the user's own transcripts.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/search"
)

// TranscriptRepo defines the repository contract required by
// TranscriptService.
type TranscriptRepo interface {
	// GetTranscript fetches a transcript owned by userID.
	GetTranscript(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Transcript, error)

	// CountTranscripts returns the number of transcripts for pagination.
	CountTranscripts(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListTranscripts returns a page of transcripts, newest first.
	ListTranscripts(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transcript, error)

	// ListRecentTranscripts returns up to limit transcripts, newest first.
	ListRecentTranscripts(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Transcript, error)

	// TranscriptsStats returns the count and latest update time.
	TranscriptsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)
}

// TranscriptService provides read access to transcripts.
type TranscriptService struct {
	DB   *gorm.DB
	Repo TranscriptRepo

	// SearchThreshold drops results scoring below it.
	SearchThreshold float64
	// MaxSearchDocs caps how many transcripts are indexed per query.
	MaxSearchDocs int
}

// ListPage returns one page of the user's transcripts, newest first, and
// the total count.
func (s *TranscriptService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transcript, int64, error) {
	tr := otel.Tracer("services/TranscriptService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountTranscripts(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transcript{}, 0, nil
	}
	items, err := s.Repo.ListTranscripts(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Get returns a transcript owned by userID.
func (s *TranscriptService) Get(ctx context.Context, userID, id string) (*domain.Transcript, error) {
	t, err := s.Repo.GetTranscript(ctx, s.DB, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTranscriptNotFound
	}
	return t, err
}

// ETag returns a weak validator that changes whenever the user's transcript
// list changes.
func (s *TranscriptService) ETag(ctx context.Context, userID string) (string, error) {
	count, maxTS, err := s.Repo.TranscriptsStats(ctx, s.DB, userID)
	if err != nil {
		return "", err
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UTC().UnixNano()
	}
	return fmt.Sprintf(`W/"transcripts:%s:%d:%d"`, userID, count, ts), nil
}

// Search ranks the user's transcripts by their best passage for query.
func (s *TranscriptService) Search(ctx context.Context, userID, query string, k int) ([]search.Result, error) {
	tr := otel.Tracer("services/TranscriptService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("k", k),
		),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	rows, err := s.Repo.ListRecentTranscripts(ctx, s.DB, userID, s.MaxSearchDocs)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(rows))
	for _, t := range rows {
		docs = append(docs, search.Document{ID: t.ID, Title: t.Title, Text: t.Text})
	}

	var opts []search.Option
	if s.MaxSearchDocs > 0 {
		opts = append(opts, search.WithMaxDocs(s.MaxSearchDocs))
	}
	hits := search.NewIndex(docs, opts...).TopK(query, k)

	out := make([]search.Result, 0, len(hits))
	for _, h := range hits {
		if h.Score >= s.SearchThreshold {
			out = append(out, h)
		}
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}
