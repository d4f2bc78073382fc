package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/engine"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
)

// AudioRef points at audio that has already been stored.
type AudioRef struct {
	URL      string
	FileName string
}

func (r AudioRef) normalized() (AudioRef, error) {
	r.URL = strings.TrimSpace(r.URL)
	r.FileName = strings.TrimSpace(r.FileName)
	if r.URL == "" {
		return r, ErrMissingAudio
	}
	if r.FileName == "" {
		r.FileName = filepath.Base(r.URL)
	}
	return r, nil
}

// committer writes the result of a successful engine call. Both the
// synchronous and the task path go through it so they share one atomic
// contract: quota check, task completion, transcript, and usage record all
// happen in a single transaction while the user's lock is held.
type committer struct {
	DB    *gorm.DB
	Quota *QuotaService
	Locks *UserLocks
}

type commitInput struct {
	UserID string
	TaskID *string
	Audio  AudioRef
	Result *engine.Result
}

// commit returns ErrQuotaExceeded when the audio does not fit the remaining
// allowance and ErrTaskFinalized when the task was completed elsewhere. No
// rows are written in either case.
func (c *committer) commit(ctx context.Context, in commitInput) (*domain.Transcript, error) {
	minutes := in.Result.Minutes()

	if c.Locks != nil {
		unlock := c.Locks.Lock(in.UserID)
		defer unlock()
	}

	var out *domain.Transcript
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		left, err := c.Quota.remaining(ctx, tx, in.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", in.UserID).Msg("quota check failed; denying")
			return ErrQuotaExceeded
		}
		if left < minutes {
			return ErrQuotaExceeded
		}

		if in.TaskID != nil {
			text, lang := in.Result.Text, in.Result.Language
			err := repo.FinishTask(ctx, tx, *in.TaskID, repo.TaskOutcome{
				Status:   domain.TaskCompleted,
				Text:     &text,
				Minutes:  &minutes,
				Language: &lang,
			})
			switch {
			case errors.Is(err, repo.ErrTaskNotPending):
				return ErrTaskFinalized
			case errors.Is(err, repo.ErrNotFound):
				return ErrTaskNotFound
			case err != nil:
				return fmt.Errorf("complete task: %w", err)
			}
		}

		t, err := repo.CreateTranscript(ctx, tx, repo.NewTranscript{
			UserID:   in.UserID,
			TaskID:   in.TaskID,
			Title:    titleFromFileName(in.Audio.FileName),
			FileName: in.Audio.FileName,
			AudioURL: in.Audio.URL,
			Text:     in.Result.Text,
			Minutes:  minutes,
			Language: in.Result.Language,
		})
		if err != nil {
			return fmt.Errorf("create transcript: %w", err)
		}

		if _, err := repo.CreateUsage(ctx, tx, in.UserID, t.ID, in.TaskID, minutes); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrTaskFinalized
			}
			return fmt.Errorf("create usage: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Title generation ---

const (
	defaultTranscriptTitle = "Untitled transcript"
	maxTitleRunes          = 60
)

var titleWordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// titleFromFileName turns "team_sync-2024.mp3" into "Team Sync 2024".
func titleFromFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	words := titleWordRE.FindAllString(strings.ToLower(base), -1)
	if len(words) == 0 {
		return defaultTranscriptTitle
	}
	caser := cases.Title(language.English)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
