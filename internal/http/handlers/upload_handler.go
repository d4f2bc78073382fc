package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-transcribe-backend/internal/storage"
)

// allowedAudioTypes lists the content types accepted by POST /uploads.
var allowedAudioTypes = map[string]struct{}{
	"audio/mpeg":     {},
	"audio/wav":      {},
	"audio/x-wav":    {},
	"audio/vnd.wave": {},
	"audio/x-m4a":    {},
	"audio/mp4":      {},
	"audio/aac":      {},
}

// UploadResponse describes a stored audio file.
type UploadResponse struct {
	URL         string `json:"url"          example:"https://bucket.s3.amazonaws.com/uploads/u1/2025/01/02/0f3c.mp3?X-Amz-Signature=..."`
	FileName    string `json:"file_name"    example:"weekly-sync.mp3"`
	ContentType string `json:"content_type" example:"audio/mpeg"`
	Size        int64  `json:"size"         example:"1048576"`
}

// now is replaced in tests.
var now = time.Now

// Upload godoc
// @ID          uploadAudio
// @Summary     Upload an audio file
// @Description Stores the file in object storage and returns a URL usable as audio_url.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file  true  "Audio file (mp3, wav, m4a, aac)"
// @Success     201   {object}  handlers.UploadResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing file"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     413   {object}  handlers.ErrorResponse  "File too large"
// @Failure     415   {object}  handlers.ErrorResponse  "Not an audio file"
// @Failure     502   {object}  handlers.ErrorResponse  "Storage failed"
// @Failure     503   {object}  handlers.ErrorResponse  "Uploads disabled"
// @Router      /uploads [post]
func (h *Handlers) Upload(c *gin.Context) {
	if h.uploads == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "uploads are not configured")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return
	}

	if _, ok := allowedAudioTypes[audioContentType(fh.Header.Get("Content-Type"), fh.Filename)]; !ok {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "unsupported audio type")
		return
	}

	f, err := fh.Open()
	if err != nil {
		failInternal(c, ErrCodeInternal, err)
		return
	}
	defer f.Close()

	// The declared type is only a hint; the stored type comes from the bytes.
	ct, err := sniffAudio(f)
	if err != nil {
		failInternal(c, ErrCodeInternal, err)
		return
	}
	if ct == "" {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "file content is not a supported audio format")
		return
	}

	name := filepath.Base(fh.Filename)
	key := storage.ObjectKey(userID(c), name, now().UTC())
	url, err := h.uploads.Put(c.Request.Context(), key, ct, f, fh.Size)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUploadFailed, "could not store file")
		return
	}

	ok(c, http.StatusCreated, UploadResponse{
		URL:         url,
		FileName:    name,
		ContentType: ct,
		Size:        fh.Size,
	})
}

// audioContentType normalizes the part's declared type, falling back to the
// file extension when the client sent a generic one.
func audioContentType(declared, fileName string) string {
	ct, _, err := mime.ParseMediaType(declared)
	if err != nil || ct == "" || ct == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".mp3":
			return "audio/mpeg"
		case ".wav":
			return "audio/wav"
		case ".m4a":
			return "audio/x-m4a"
		case ".aac":
			return "audio/aac"
		}
		return ct
	}
	return strings.ToLower(ct)
}

// sniffAudio detects the content type from the leading bytes of f and
// rewinds it. It returns "" when the content is not an allowed audio type.
func sniffAudio(f io.ReadSeeker) (string, error) {
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	ct, _, _ := mime.ParseMediaType(m.String())
	if !strings.HasPrefix(ct, "audio/") {
		return "", nil
	}
	for allowed := range allowedAudioTypes {
		if m.Is(allowed) {
			return ct, nil
		}
	}
	return "", nil
}
