// Transcript HTTP handlers.
//
//   - GET /transcripts          (list, paginated, ETag support)
//   - GET /transcripts/search   (passage search over the caller's transcripts)
//   - GET /transcripts/{id}     (one transcript)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/services"
	"github.com/tbourn/go-transcribe-backend/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultSearchK = 5
	maxSearchK     = 20
)

// ListTranscriptsResponse wraps a page of transcripts and pagination info.
type ListTranscriptsResponse struct {
	Transcripts []domain.Transcript `json:"transcripts"`
	Pagination  Pagination          `json:"pagination"`
}

// SearchHit is one matching transcript with its best passage.
type SearchHit struct {
	TranscriptID string  `json:"transcript_id"`
	Title        string  `json:"title"   example:"Weekly Sync"`
	Snippet      string  `json:"snippet" example:"we agreed to ship the upload flow on Friday"`
	Score        float64 `json:"score"   example:"0.42"`
}

// SearchResponse lists hits, best first.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// ListTranscripts godoc
// @ID          listTranscripts
// @Summary     List transcripts (paginated)
// @Description Newest first. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Transcripts
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListTranscriptsResponse
// @Header      200  {string}  ETag  "Weak ETag for the user's transcript list"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /transcripts [get]
func (h *Handlers) ListTranscripts(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if etag, err := h.transcripts.ETag(ctx, uid); err == nil {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	items, total, err := h.transcripts.ListPage(ctx, uid, p.Number, p.Size)
	if err != nil {
		failInternal(c, ErrCodeInternal, err)
		return
	}

	totalPages := utils.TotalPages(total, p.Size)
	ok(c, http.StatusOK, ListTranscriptsResponse{
		Transcripts: items,
		Pagination: Pagination{
			Page:       p.Number,
			PageSize:   p.Size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    p.Number < totalPages,
		},
	})
}

// GetTranscript godoc
// @ID          getTranscript
// @Summary     Read one transcript
// @Tags        Transcripts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Transcript ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Transcript
// @Failure     400  {object}  handlers.ErrorResponse "Invalid id"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Transcript not found"
// @Router      /transcripts/{id} [get]
func (h *Handlers) GetTranscript(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript id must be a UUID")
		return
	}

	t, err := h.transcripts.Get(c.Request.Context(), userID(c), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, t)
	case errors.Is(err, services.ErrTranscriptNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		failInternal(c, ErrCodeInternal, err)
	}
}

// SearchTranscripts godoc
// @ID          searchTranscripts
// @Summary     Search the caller's transcripts
// @Tags        Transcripts
// @Produce     json
// @Security    BearerAuth
// @Param       q    query     string  true  "Search text"
// @Param       k    query     int     false "Max results"  minimum(1) maximum(20) default(5)
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing query"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /transcripts/search [get]
func (h *Handlers) SearchTranscripts(c *gin.Context) {
	q := c.Query("q")
	k := utils.AtoiDefault(c.Query("k"), defaultSearchK)
	if k < 1 {
		k = defaultSearchK
	}
	if k > maxSearchK {
		k = maxSearchK
	}

	hits, err := h.transcripts.Search(c.Request.Context(), userID(c), q, k)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		failInternal(c, ErrCodeInternal, err)
		return
	}

	out := make([]SearchHit, 0, len(hits))
	for _, r := range hits {
		out = append(out, SearchHit{TranscriptID: r.DocID, Title: r.Title, Snippet: r.Snippet, Score: r.Score})
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Results: out})
}
