// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/auth"
	"github.com/tbourn/go-transcribe-backend/internal/config"
	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/http/handlers"
	"github.com/tbourn/go-transcribe-backend/internal/http/middleware"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
	"github.com/tbourn/go-transcribe-backend/internal/services"
	"github.com/tbourn/go-transcribe-backend/internal/storage"
)

// defaultBodyLimit caps JSON request bodies; uploads get cfg.MaxUploadBytes.
const defaultBodyLimit = 1 << 20

// maxSearchDocs caps how many transcripts a single search indexes.
const maxSearchDocs = 500

// transcriptRepoShim adapts the repository free functions to the
// services.TranscriptRepo interface expected by the TranscriptService. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type transcriptRepoShim struct{}

// GetTranscript proxies repo.GetTranscript.
func (transcriptRepoShim) GetTranscript(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Transcript, error) {
	return repo.GetTranscript(ctx, db, userID, id)
}

// CountTranscripts proxies repo.CountTranscripts.
func (transcriptRepoShim) CountTranscripts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountTranscripts(ctx, db, userID)
}

// ListTranscripts proxies repo.ListTranscripts.
func (transcriptRepoShim) ListTranscripts(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transcript, error) {
	return repo.ListTranscripts(ctx, db, userID, offset, limit)
}

// ListRecentTranscripts proxies repo.ListRecentTranscripts (search corpus).
func (transcriptRepoShim) ListRecentTranscripts(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Transcript, error) {
	return repo.ListRecentTranscripts(ctx, db, userID, limit)
}

// TranscriptsStats proxies repo.TranscriptsStats (ETag support).
func (transcriptRepoShim) TranscriptsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.TranscriptsStats(ctx, db, userID)
}

// Deps carries the services built by the caller. Uploads may be nil.
type Deps struct {
	DB         *gorm.DB
	Users      *services.UserService
	Quota      *services.QuotaService
	Transcribe *services.TranscribeService
	Tasks      *services.TaskService
	Uploads    storage.Store
}

// authenticator adapts UserService.Authenticate to the middleware contract:
// unusable tokens and deleted users are reported as unauthenticated.
func authenticator(users *services.UserService) middleware.Authenticator {
	return func(ctx context.Context, token string) (string, error) {
		uid, err := users.Authenticate(ctx, token)
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, services.ErrUserNotFound) {
			return "", fmt.Errorf("%w: %v", middleware.ErrUnauthenticated, err)
		}
		return uid, err
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), body limits,
// compression, CORS and security headers, health and metrics endpoints, and
// then mounts the versioned public API under cfg.APIBasePath.
//
// Global middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (per-route overrides for uploads)
//  6. Metrics
//  7. Rate limiter (per IP)
//  8. CORS, gzip and security headers
//
// Per-route order on authenticated groups is RequireAuth → NoStore, and the
// transcription routes add IdempotencyValidator → transcription limiter (per
// user) before the handler.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	// 5) Body size limits
	r.Use(middleware.BodyLimit(defaultBodyLimit, map[string]int64{
		joinPath(apiBase, "/uploads"): cfg.MaxUploadBytes,
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter. Identity is resolved per route group, so
	// the global bucket is effectively per IP.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderIdempotencyKey, middleware.HeaderInternalToken,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compress JSON responses; metrics and swagger assets handle their own.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	transcriptSvc := &services.TranscriptService{
		DB:              d.DB,
		Repo:            transcriptRepoShim{},
		SearchThreshold: cfg.SearchThreshold,
		MaxSearchDocs:   maxSearchDocs,
	}
	h := handlers.New(handlers.Deps{
		Accounts:    d.Users,
		Transcribe:  d.Transcribe,
		Tasks:       d.Tasks,
		Transcripts: transcriptSvc,
		Quota:       d.Quota,
		Uploads:     d.Uploads,
	})

	authn := authenticator(d.Users)
	requireAuth := middleware.RequireAuth(authn)

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			Scope:  services.TaskIdempotencyScope,
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, d.DB, userID, scope, key, now)
			switch {
			case err == nil:
				return true, nil
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			default:
				return false, err
			}
		},
	)

	// Stricter bucket for routes that spend engine time, keyed by user.
	transcribeRL := middleware.NewRateLimiter(cfg.TranscribeRateRPS, cfg.TranscribeRateBurst, middleware.KeyByUserOrIP()).
		Named("transcribe", "too many transcription requests")

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Accounts (anonymous)
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		// Usage answers anonymous callers itself
		api.GET("/usage", middleware.OptionalAuth(authn), middleware.NoStore(), h.Usage)

		// Authenticated routes
		authed := api.Group("", requireAuth, middleware.NoStore())

		authed.GET("/me", h.Me)
		authed.PUT("/me/password", h.ChangePassword)
		authed.DELETE("/me", h.DeleteMe)

		authed.POST("/uploads", h.Upload)

		authed.POST("/transcriptions", transcribeRL.Handler(), h.Transcribe)
		authed.POST("/transcriptions/tasks", idem, transcribeRL.Handler(), h.CreateTask)
		authed.GET("/transcriptions/tasks/:id", h.GetTask)

		authed.GET("/transcripts", h.ListTranscripts)
		authed.GET("/transcripts/search", h.SearchTranscripts)
		authed.GET("/transcripts/:id", h.GetTranscript)

		// Task runner callback
		api.POST("/internal/transcriptions/process", middleware.RequireInternalToken(cfg.Auth.InternalToken), h.ProcessTask)
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath returns the full route path of p mounted under prefix, matching
// what gin reports from c.FullPath().
func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
