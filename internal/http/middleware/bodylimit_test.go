package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(8, map[string]int64{"/uploads": 32}))
	read := func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	}
	r.POST("/small", read)
	r.POST("/uploads", read)

	cases := []struct {
		name, path string
		body       string
		hideLen    bool
		want       int
	}{
		{"within default", "/small", "12345678", false, http.StatusOK},
		{"over default by header", "/small", "123456789", false, http.StatusRequestEntityTooLarge},
		{"over default while reading", "/small", "123456789", true, http.StatusRequestEntityTooLarge},
		{"override allows more", "/uploads", strings.Repeat("x", 32), false, http.StatusOK},
		{"override still caps", "/uploads", strings.Repeat("x", 33), false, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			if tc.hideLen {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("code = %d; want %d", w.Code, tc.want)
			}
		})
	}
}
