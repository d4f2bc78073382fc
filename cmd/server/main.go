// Command server runs the transcription API.
//
// @title                      Transcription API
// @version                    1.0
// @description                Audio transcription with per-user usage quotas, background tasks and transcript history.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-transcribe-backend/docs"
	"github.com/tbourn/go-transcribe-backend/internal/auth"
	"github.com/tbourn/go-transcribe-backend/internal/config"
	"github.com/tbourn/go-transcribe-backend/internal/engine"
	httpapi "github.com/tbourn/go-transcribe-backend/internal/http"
	"github.com/tbourn/go-transcribe-backend/internal/observability"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
	"github.com/tbourn/go-transcribe-backend/internal/services"
	"github.com/tbourn/go-transcribe-backend/internal/storage"
	"github.com/tbourn/go-transcribe-backend/internal/sysutil"
	"github.com/tbourn/go-transcribe-backend/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...";
// APP_VERSION takes precedence when set.
var version = "dev"

const (
	shutdownTimeout     = 20 * time.Second
	idempotencySweep    = 10 * time.Minute
	failureWriteTimeout = 5 * time.Second
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	if err != nil {
		return err
	}

	eng, err := engine.NewOpenAI(engine.OpenAIConfig{
		APIKey:     cfg.Engine.APIKey,
		BaseURL:    cfg.Engine.BaseURL,
		Model:      cfg.Engine.Model,
		Timeout:    cfg.Engine.Timeout,
		MaxRetries: cfg.Engine.MaxRetries,
	})
	if err != nil {
		return err
	}
	fetchPolicy := storage.FetchPolicy{
		AllowedHosts: cfg.FetchAllowedHosts,
		AllowPrivate: cfg.FetchAllowPrivate,
	}.WithUploadHost(cfg.S3.Host())
	fetcher := storage.NewHTTPFetcher(cfg.Engine.Timeout, cfg.FetchMaxBytes, fetchPolicy)

	var uploads storage.Store
	if cfg.S3.Enabled() {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			PresignTTL: cfg.S3.PresignTTL,
		})
		if err != nil {
			return err
		}
		uploads = s3Store
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("uploads enabled")
	} else {
		log.Info().Msg("uploads disabled: S3_BUCKET not set")
	}

	quota := &services.QuotaService{DB: db}
	locks := services.NewUserLocks()
	users := &services.UserService{DB: db, Hasher: auth.Hasher{Cost: cfg.Auth.BcryptCost}, Tokens: tokens, Quota: quota}
	transcribe := &services.TranscribeService{DB: db, Quota: quota, Locks: locks, Fetcher: fetcher, Engine: eng}
	tasks := &services.TaskService{
		DB:                  db,
		Quota:               quota,
		Locks:               locks,
		Fetcher:             fetcher,
		Engine:              eng,
		IdempotencyTTL:      cfg.IdempotencyTTL,
		FailureWriteTimeout: failureWriteTimeout,
	}

	pool := worker.New(worker.Config{
		Workers:    cfg.Worker.Workers,
		QueueSize:  cfg.Worker.QueueSize,
		JobTimeout: cfg.Worker.ProcessTimeout,
	}, tasks.Process)
	tasks.Dispatcher = pool
	pool.Start(context.WithoutCancel(ctx))

	if n, err := tasks.ResumePending(ctx); err != nil {
		log.Warn().Err(err).Msg("resume pending tasks")
	} else if n > 0 {
		log.Info().Int("tasks", n).Msg("resumed pending tasks")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:         db,
		Users:      users,
		Quota:      quota,
		Transcribe: transcribe,
		Tasks:      tasks,
		Uploads:    uploads,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepIdempotency(gctx, db)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("shutting down")
		httpErr := srv.Shutdown(sctx)
		if err := pool.Stop(sctx); err != nil {
			log.Warn().Err(err).Int("queued", pool.Len()).Msg("worker pool did not drain")
		}
		return httpErr
	})
	return g.Wait()
}

func openDB(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := repo.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := repo.Instrument(db); err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// sweepIdempotency deletes expired Idempotency-Key records until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency keys")
			}
		}
	}
}
