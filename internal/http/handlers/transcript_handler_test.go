package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/search"
	"github.com/tbourn/go-transcribe-backend/internal/services"
)

func transcriptRouter(svc TranscriptService) http.Handler {
	h := New(Deps{Transcripts: svc})
	r := newRouter("u1")
	r.GET("/transcripts", h.ListTranscripts)
	r.GET("/transcripts/search", h.SearchTranscripts)
	r.GET("/transcripts/:id", h.GetTranscript)
	return r
}

func TestListTranscripts_PaginationAndClamp(t *testing.T) {
	var gotPage, gotSize int
	svc := stubTranscripts{listPage: func(_ context.Context, uid string, page, size int) ([]domain.Transcript, int64, error) {
		if uid != "u1" {
			t.Fatalf("uid=%q", uid)
		}
		gotPage, gotSize = page, size
		return []domain.Transcript{{ID: "t1", UserID: uid, Text: "a"}, {ID: "t2", UserID: uid, Text: "b"}}, 45, nil
	}}
	r := transcriptRouter(svc)

	w := doJSON(r, http.MethodGet, "/transcripts?page=2&page_size=20", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListTranscriptsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if gotPage != 2 || gotSize != 20 {
		t.Fatalf("service got page=%d size=%d", gotPage, gotSize)
	}
	if len(resp.Transcripts) != 2 || resp.Pagination.Total != 45 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected: %+v", resp)
	}

	// garbage and oversize values fall back or clamp
	doJSON(r, http.MethodGet, "/transcripts?page=-3&page_size=5000", nil)
	if gotPage != 1 || gotSize != maxPageSize {
		t.Fatalf("clamp: page=%d size=%d", gotPage, gotSize)
	}
	doJSON(r, http.MethodGet, "/transcripts?page=x&page_size=y", nil)
	if gotPage != 1 || gotSize != defaultPageSize {
		t.Fatalf("defaults: page=%d size=%d", gotPage, gotSize)
	}
}

func TestListTranscripts_ETag(t *testing.T) {
	calls := 0
	svc := stubTranscripts{
		etag: func(context.Context, string) (string, error) { return `W/"2-1700000000"`, nil },
		listPage: func(context.Context, string, int, int) ([]domain.Transcript, int64, error) {
			calls++
			return nil, 0, nil
		},
	}
	r := transcriptRouter(svc)

	w := doJSON(r, http.MethodGet, "/transcripts", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != `W/"2-1700000000"` {
		t.Fatalf("status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
	var resp ListTranscriptsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination.HasNext || resp.Pagination.TotalPages != 0 {
		t.Fatalf("empty list pagination: %+v", resp.Pagination)
	}

	req := httptest.NewRequest(http.MethodGet, "/transcripts", nil)
	req.Header.Set("If-None-Match", `W/"2-1700000000"`)
	w = serve(r, req)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if calls != 1 {
		t.Fatalf("304 must not list, calls=%d", calls)
	}
}

func TestListTranscripts_ServiceError(t *testing.T) {
	svc := stubTranscripts{listPage: func(context.Context, string, int, int) ([]domain.Transcript, int64, error) {
		return nil, 0, errors.New("db down")
	}}
	mustError(t, doJSON(transcriptRouter(svc), http.MethodGet, "/transcripts", nil), http.StatusInternalServerError, ErrCodeInternal)
}

func TestGetTranscript(t *testing.T) {
	known := uuid.NewString()
	svc := stubTranscripts{get: func(_ context.Context, uid, id string) (*domain.Transcript, error) {
		if id == known {
			return &domain.Transcript{ID: id, UserID: uid, Text: "hello", Minutes: 1.5}, nil
		}
		return nil, services.ErrTranscriptNotFound
	}}
	r := transcriptRouter(svc)

	w := doJSON(r, http.MethodGet, "/transcripts/"+known, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got domain.Transcript
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != known || got.Text != "hello" || got.Minutes != 1.5 {
		t.Fatalf("unexpected: %+v", got)
	}

	mustError(t, doJSON(r, http.MethodGet, "/transcripts/"+uuid.NewString(), nil), http.StatusNotFound, ErrCodeNotFound)
	mustError(t, doJSON(r, http.MethodGet, "/transcripts/nope", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestSearchTranscripts(t *testing.T) {
	var gotQ string
	var gotK int
	svc := stubTranscripts{search: func(_ context.Context, _ string, q string, k int) ([]search.Result, error) {
		gotQ, gotK = q, k
		if q == "" {
			return nil, services.ErrEmptyQuery
		}
		return []search.Result{{DocID: "t1", Title: "Weekly Sync", Snippet: "ship on Friday", Score: 0.42}}, nil
	}}
	r := transcriptRouter(svc)

	w := doJSON(r, http.MethodGet, "/transcripts/search?q=ship&k=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if gotQ != "ship" || gotK != 3 || resp.Query != "ship" || len(resp.Results) != 1 {
		t.Fatalf("q=%q k=%d resp=%+v", gotQ, gotK, resp)
	}
	if hit := resp.Results[0]; hit.TranscriptID != "t1" || hit.Snippet != "ship on Friday" || hit.Score != 0.42 {
		t.Fatalf("hit=%+v", hit)
	}

	doJSON(r, http.MethodGet, "/transcripts/search?q=ship&k=500", nil)
	if gotK != maxSearchK {
		t.Fatalf("k not clamped: %d", gotK)
	}
	doJSON(r, http.MethodGet, "/transcripts/search?q=ship&k=0", nil)
	if gotK != defaultSearchK {
		t.Fatalf("k default: %d", gotK)
	}

	mustError(t, doJSON(r, http.MethodGet, "/transcripts/search", nil), http.StatusBadRequest, ErrCodeBadRequest)
}
