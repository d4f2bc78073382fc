package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/engine"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mkUser(t *testing.T, db *gorm.DB, premium bool) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, db, uuid.NewString()+"@example.com", "hash", "Test")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if premium {
		if err := repo.SetPremium(ctx, db, u.ID, true); err != nil {
			t.Fatalf("SetPremium: %v", err)
		}
		u.IsPremium = true
	}
	return u
}

// useMinutes charges the user directly, backdated by age.
func useMinutes(t *testing.T, db *gorm.DB, userID string, minutes float64, age time.Duration) {
	t.Helper()
	rec, err := repo.CreateUsage(context.Background(), db, userID, uuid.NewString(), nil, minutes)
	if err != nil {
		t.Fatalf("CreateUsage: %v", err)
	}
	if age > 0 {
		if err := db.Model(&domain.UsageRecord{}).Where("id = ?", rec.ID).
			Update("created_at", time.Now().UTC().Add(-age)).Error; err != nil {
			t.Fatalf("backdate usage: %v", err)
		}
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ---------- fakes ----------

type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.data == nil {
		return []byte("RIFFfake"), nil
	}
	return f.data, nil
}

// fakeEngine reports a fixed duration in minutes.
type fakeEngine struct {
	mu      sync.Mutex
	minutes float64
	text    string
	lang    string
	err     error
	block   bool // wait for ctx to end
	calls   int
}

func (e *fakeEngine) Transcribe(ctx context.Context, audio []byte, fileName string) (*engine.Result, error) {
	e.mu.Lock()
	e.calls++
	block, err := e.block, e.err
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	text := e.text
	if text == "" {
		text = "hello world"
	}
	lang := e.lang
	if lang == "" {
		lang = "en"
	}
	return &engine.Result{Text: text, Language: lang, DurationSeconds: e.minutes * 60}, nil
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Enqueue(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func (d *fakeDispatcher) queued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

var errBoom = errors.New("boom")
