// Package handlers implements the public HTTP API.
//
// Handlers are transport-thin: they bind and validate input, call a service
// through the narrow interfaces below, and translate results and sentinel
// errors into HTTP responses. Identity comes from middleware.RequireAuth.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/http/middleware"
	"github.com/tbourn/go-transcribe-backend/internal/search"
	"github.com/tbourn/go-transcribe-backend/internal/services"
	"github.com/tbourn/go-transcribe-backend/internal/storage"
)

//
// Service contracts (context-aware)
//

// AccountService manages registration, sessions and the caller's profile.
type AccountService interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Profile(ctx context.Context, userID string) (*services.Profile, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	Delete(ctx context.Context, userID string) error
}

// TranscribeService runs a transcription inside the request.
type TranscribeService interface {
	Transcribe(ctx context.Context, userID string, ref services.AudioRef) (*services.Result, error)
}

// TaskService creates, inspects and processes background tasks.
type TaskService interface {
	// CreateIdempotent creates a pending task; a non-empty key replays the
	// task created earlier with the same key.
	CreateIdempotent(ctx context.Context, userID, key string, ref services.AudioRef) (*domain.TranscriptionTask, bool, error)
	Status(ctx context.Context, userID, taskID string) (*domain.TranscriptionTask, error)
	Process(ctx context.Context, taskID string) error
}

// TranscriptService reads the caller's transcript history.
type TranscriptService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transcript, int64, error)
	Get(ctx context.Context, userID, id string) (*domain.Transcript, error)
	ETag(ctx context.Context, userID string) (string, error)
	Search(ctx context.Context, userID, query string, k int) ([]search.Result, error)
}

// QuotaService reports remaining minutes.
type QuotaService interface {
	RemainingMinutes(ctx context.Context, userID string) float64
}

//
// Handler wiring
//

// Deps collects the services the handlers call. Uploads may be nil, which
// turns POST /uploads into 503.
type Deps struct {
	Accounts    AccountService
	Transcribe  TranscribeService
	Tasks       TaskService
	Transcripts TranscriptService
	Quota       QuotaService
	Uploads     storage.Store
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	accounts    AccountService
	transcribe  TranscribeService
	tasks       TaskService
	transcripts TranscriptService
	quota       QuotaService
	uploads     storage.Store
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		accounts:    d.Accounts,
		transcribe:  d.Transcribe,
		tasks:       d.Tasks,
		transcripts: d.Transcripts,
		quota:       d.Quota,
		uploads:     d.Uploads,
	}
}

// userID returns the caller set by the auth middleware. Routes using it are
// mounted behind RequireAuth, so it is never empty there.
func userID(c *gin.Context) string {
	uid, _ := middleware.UserID(c)
	return uid
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
