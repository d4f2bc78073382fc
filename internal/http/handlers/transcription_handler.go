// Transcription HTTP handlers.
//
//   - POST /transcriptions                    (synchronous transcribe)
//   - POST /transcriptions/tasks              (create background task, 202)
//   - GET  /transcriptions/tasks/{id}         (task status)
//   - POST /internal/transcriptions/process   (run one task, task runner only)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/http/middleware"
	"github.com/tbourn/go-transcribe-backend/internal/services"
)

//
// DTOs
//

// TranscribeRequest references audio that was uploaded earlier.
type TranscribeRequest struct {
	AudioURL string `json:"audio_url" example:"https://storage.example.com/uploads/u1/2025/01/02/a.mp3"`
	FileName string `json:"file_name" example:"weekly-sync.mp3"`
}

// TranscribeResponse is the result of a synchronous transcription.
type TranscribeResponse struct {
	TranscriptID string  `json:"transcript_id"`
	Text         string  `json:"text"`
	Duration     float64 `json:"duration" example:"2.5"` // minutes
	Language     string  `json:"language" example:"en"`
}

// CreateTaskResponse acknowledges a queued task.
type CreateTaskResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status" example:"pending"`
}

// TaskResponse is the caller-visible state of a task.
type TaskResponse struct {
	TaskID    string            `json:"task_id"`
	Status    domain.TaskStatus `json:"status"             example:"completed"`
	FileName  string            `json:"file_name"`
	Text      *string           `json:"text,omitempty"`
	Duration  *float64          `json:"duration,omitempty"` // minutes
	Language  *string           `json:"language,omitempty"`
	Error     *string           `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProcessTaskRequest names the task the runner wants processed.
type ProcessTaskRequest struct {
	TaskID string `json:"task_id"`
}

func (r TranscribeRequest) ref() services.AudioRef {
	return services.AudioRef{URL: r.AudioURL, FileName: r.FileName}
}

func taskView(t *domain.TranscriptionTask) TaskResponse {
	return TaskResponse{
		TaskID:    t.ID,
		Status:    t.Status,
		FileName:  t.FileName,
		Text:      t.Text,
		Duration:  t.Minutes,
		Language:  t.Language,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// failTranscription maps the shared orchestration errors.
func failTranscription(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingAudio):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusForbidden, ErrCodeQuotaExceeded, err.Error())
	case errors.Is(err, services.ErrUpstream):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, services.ErrUpstream.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

//
// Handlers
//

// Transcribe godoc
// @ID          transcribe
// @Summary     Transcribe audio synchronously
// @Description Fetches the audio, transcribes it and charges the duration to the caller's quota.
// @Description Nothing is stored or charged unless the whole operation succeeds.
// @Tags        Transcriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.TranscribeRequest  true  "Audio reference"
// @Success     200   {object}  handlers.TranscribeResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing audio URL"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403   {object}  handlers.ErrorResponse  "Usage quota exceeded"
// @Failure     429   {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502   {object}  handlers.ErrorResponse  "Audio fetch or engine failed"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transcriptions [post]
func (h *Handlers) Transcribe(c *gin.Context) {
	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.transcribe.Transcribe(c.Request.Context(), userID(c), req.ref())
	if err != nil {
		failTranscription(c, err)
		return
	}
	ok(c, http.StatusOK, TranscribeResponse{
		TranscriptID: res.TranscriptID,
		Text:         res.Text,
		Duration:     res.Minutes,
		Language:     res.Language,
	})
}

// CreateTask godoc
// @ID          createTranscriptionTask
// @Summary     Queue a background transcription
// @Description Returns immediately with a task id; poll the task for the result.
// @Description An Idempotency-Key makes retries return the task created first.
// @Tags        Transcriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                      false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body      handlers.TranscribeRequest  true   "Audio reference"
// @Success     202              {object}  handlers.CreateTaskResponse
// @Header      202              {string}  Idempotency-Replayed  "true when an earlier task was returned"
// @Failure     400              {object}  handlers.ErrorResponse  "Missing audio URL or bad key"
// @Failure     401              {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500              {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transcriptions/tasks [post]
func (h *Handlers) CreateTask(c *gin.Context) {
	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	task, replayed, err := h.tasks.CreateIdempotent(c.Request.Context(), userID(c), key, req.ref())
	if err != nil {
		if errors.Is(err, services.ErrMissingAudio) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		failInternal(c, ErrCodeInternal, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusAccepted, CreateTaskResponse{TaskID: task.ID, Status: task.Status})
}

// GetTask godoc
// @ID          getTranscriptionTask
// @Summary     Read a task's status
// @Tags        Transcriptions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Task ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.TaskResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid task id"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Task belongs to another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Task not found"
// @Router      /transcriptions/tasks/{id} [get]
func (h *Handlers) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := uuid.Parse(taskID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return
	}

	task, err := h.tasks.Status(c.Request.Context(), userID(c), taskID)
	switch {
	case err == nil:
		ok(c, http.StatusOK, taskView(task))
	case errors.Is(err, services.ErrTaskNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrTaskForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// ProcessTask godoc
// @ID          processTranscriptionTask
// @Summary     Run one pending task (internal)
// @Description Called by the task runner with the shared internal token.
// @Tags        Internal
// @Accept      json
// @Produce     json
// @Param       X-Internal-Token  header    string                       true  "Shared secret"
// @Param       body              body      handlers.ProcessTaskRequest  true  "Task to process"
// @Success     200               {object}  handlers.SuccessResponse
// @Failure     400               {object}  handlers.ErrorResponse  "Missing task id"
// @Failure     401               {object}  handlers.ErrorResponse  "Bad internal token"
// @Failure     403               {object}  handlers.ErrorResponse  "Usage quota exceeded"
// @Failure     404               {object}  handlers.ErrorResponse  "Task not found"
// @Failure     409               {object}  handlers.ErrorResponse  "Task already finalized"
// @Failure     502               {object}  handlers.ErrorResponse  "Audio fetch or engine failed"
// @Failure     500               {object}  handlers.ErrorResponse  "Internal error"
// @Router      /internal/transcriptions/process [post]
func (h *Handlers) ProcessTask(c *gin.Context) {
	var req ProcessTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TaskID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task_id required")
		return
	}

	err := h.tasks.Process(c.Request.Context(), strings.TrimSpace(req.TaskID))
	switch {
	case err == nil:
		okSuccess(c)
	case errors.Is(err, services.ErrTaskNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrTaskFinalized):
		fail(c, http.StatusConflict, ErrCodeTaskFinalized, err.Error())
	default:
		failTranscription(c, err)
	}
}
