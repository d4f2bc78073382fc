package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-transcribe-backend/internal/services"
)

// loggedRouter routes through newRouter and attaches a request logger that
// writes into buf, the way middleware.RequestLogger does.
func loggedRouter(buf *bytes.Buffer) *gin.Engine {
	r := newRouter("u1")
	lg := zerolog.New(buf)
	r.Use(func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	return r
}

func TestFail_DomainCodes(t *testing.T) {
	cases := []struct {
		status int
		code   string
		msg    string
		logged bool
	}{
		{http.StatusForbidden, ErrCodeQuotaExceeded, "usage quota exceeded", false},
		{http.StatusConflict, ErrCodeTaskFinalized, "task already finalized", false},
		{http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "file content is not a supported audio format", false},
		{http.StatusBadGateway, ErrCodeUpstreamFailed, "transcription processing failed", true},
		{http.StatusBadGateway, ErrCodeUploadFailed, "could not store file", true},
		{http.StatusServiceUnavailable, ErrCodeUnavailable, "uploads are not configured", true},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			var buf bytes.Buffer
			r := loggedRouter(&buf)
			r.POST("/x", func(c *gin.Context) { fail(c, tc.status, tc.code, tc.msg) })

			er := mustError(t, doJSON(r, http.MethodPost, "/x", nil), tc.status, tc.code)
			if er.Message != tc.msg {
				t.Fatalf("message=%q want %q", er.Message, tc.msg)
			}
			if got := strings.Contains(buf.String(), `"code":"`+tc.code+`"`); got != tc.logged {
				t.Fatalf("logged=%v want %v: %s", got, tc.logged, buf.String())
			}
			if tc.logged && !strings.Contains(buf.String(), `"level":"error"`) {
				t.Fatalf("5xx not logged at error level: %s", buf.String())
			}
		})
	}
}

func TestFailTranscription_UpstreamDetailStaysServerSide(t *testing.T) {
	var buf bytes.Buffer
	var recorded string
	r := loggedRouter(&buf)
	r.Use(func(c *gin.Context) {
		c.Next()
		recorded = c.Errors.String()
	})
	cause := fmt.Errorf("%w: fetch audio: %w", services.ErrUpstream, errors.New("dial tcp 10.0.0.7:9000: connection refused"))
	r.POST("/transcribe", func(c *gin.Context) { failTranscription(c, cause) })

	w := doJSON(r, http.MethodPost, "/transcribe", nil)
	er := mustError(t, w, http.StatusBadGateway, ErrCodeUpstreamFailed)
	if er.Message != services.ErrUpstream.Error() || strings.Contains(w.Body.String(), "10.0.0.7") {
		t.Fatalf("upstream detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(recorded, "10.0.0.7") {
		t.Fatalf("cause not recorded on context: %q", recorded)
	}
}

func TestFailTranscription_QuotaAndInternal(t *testing.T) {
	r := newRouter("u1")
	r.POST("/quota", func(c *gin.Context) {
		failTranscription(c, fmt.Errorf("commit: %w", services.ErrQuotaExceeded))
	})
	r.POST("/db", func(c *gin.Context) {
		failTranscription(c, errors.New("database is locked"))
	})

	er := mustError(t, doJSON(r, http.MethodPost, "/quota", nil), http.StatusForbidden, ErrCodeQuotaExceeded)
	if !strings.Contains(er.Message, services.ErrQuotaExceeded.Error()) {
		t.Fatalf("quota message=%q", er.Message)
	}

	w := doJSON(r, http.MethodPost, "/db", nil)
	er = mustError(t, w, http.StatusInternalServerError, ErrCodeInternal)
	if er.Message != "internal server error" || strings.Contains(w.Body.String(), "locked") {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}

func TestSuccessHelpers(t *testing.T) {
	r := newRouter("u1")
	r.POST("/tasks", func(c *gin.Context) {
		ok(c, http.StatusAccepted, gin.H{"task_id": "t1", "status": "pending"})
	})
	r.DELETE("/me", func(c *gin.Context) { okSuccess(c) })

	w := doJSON(r, http.MethodPost, "/tasks", nil)
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || w.Code != http.StatusAccepted {
		t.Fatalf("status=%d err=%v", w.Code, err)
	}
	if body["task_id"] != "t1" || body["status"] != "pending" {
		t.Fatalf("body=%v", body)
	}

	w = doJSON(r, http.MethodDelete, "/me", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Fatalf("ack: %d %s", w.Code, w.Body.String())
	}
}
