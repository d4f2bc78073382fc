package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/transcripts/:id", func(c *gin.Context) {
		c.Set(ctxKeyUserID, "u-7")
		c.String(http.StatusOK, "ok")
	})

	q := "email=a.b+tag@example.com&phone=+1-555-123-4567&id=123e4567-e89b-12d3-a456-426614174000" +
		"&token=eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1MSJ9.sig_-part"
	req := httptest.NewRequest(http.MethodGet, "/transcripts/123?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-Internal-Token", "runner-secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Custom", "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 555-123-4567")
	req.Header.Set("X-Request-ID", "rid-req")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/transcripts/:id"`,
		`"request_id":"rid-req"`,
		`"user_id":"u-7"`,
		`[REDACTED:email]`,
		`[REDACTED:phone]`,
		`[REDACTED:id]`,
		`token=[REDACTED:token]`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"X-Internal-Token":"[REDACTED]"`,
		`"X-Api-Key":"[REDACTED]"`,
		`"X-Custom":"email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("missing %s in: %s", want, logs)
		}
	}
	for _, leaked := range []string{"topsecret", "runner-secret", "shhh", "eyJzdWIi"} {
		if strings.Contains(logs, leaked) {
			t.Fatalf("leaked %q: %s", leaked, logs)
		}
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/ctxerr", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusBadRequest)
	})

	for _, p := range []string{"/warn", "/error", "/ctxerr", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("X-Request-ID", "rid"+strings.ReplaceAll(p, "/", "-"))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 access lines, got %d: %s", len(lines), buf.String())
	}
	checks := []struct{ level, rid string }{
		{"warn", "rid-warn"},
		{"error", "rid-error"},
		{"error", "rid-ctxerr"},
		{"warn", "rid-missing"},
	}
	for i, want := range checks {
		if !strings.Contains(lines[i], `"level":"`+want.level+`"`) || !strings.Contains(lines[i], `"request_id":"`+want.rid+`"`) {
			t.Fatalf("line %d = %s; want level %s rid %s", i, lines[i], want.level, want.rid)
		}
	}
	if !strings.Contains(lines[2], `"errors":"Error #01: boom`) {
		t.Fatalf("gin errors not logged: %s", lines[2])
	}
	if !strings.Contains(lines[3], `"path":"/missing"`) {
		t.Fatalf("unmatched routes should log the raw path: %s", lines[3])
	}
}
