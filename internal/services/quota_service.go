// Package services – QuotaService
//
// QuotaService computes how many transcription minutes a user has left in the
// trailing quota window. Two read paths exist on purpose with opposite
// failure polarity: RemainingMinutes is a display query and degrades to the
// free allowance, CanTranscribe is a permission check and degrades to deny.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/repo"
)

// Allowances per rolling window, in minutes.
const (
	FreeMinutesPerPeriod    = 120.0
	PremiumMinutesPerPeriod = 1200.0
	QuotaWindow             = 30 * 24 * time.Hour
)

// QuotaService reads the usage ledger.
type QuotaService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *QuotaService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RemainingMinutes returns the user's unused minutes in the current window.
// An unknown user has 0. A storage failure is logged and answered with the
// free allowance.
func (s *QuotaService) RemainingMinutes(ctx context.Context, userID string) float64 {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "RemainingMinutes",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	left, err := s.remaining(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("user_id", userID).Msg("quota lookup failed; assuming free allowance")
		return FreeMinutesPerPeriod
	}
	return left
}

// CanTranscribe reports whether the user may spend minutes now. Any internal
// failure denies.
func (s *QuotaService) CanTranscribe(ctx context.Context, userID string, minutes float64) bool {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "CanTranscribe",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Float64("minutes", minutes),
		),
	)
	defer span.End()

	left, err := s.remaining(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("user_id", userID).Msg("quota check failed; denying")
		return false
	}
	return left >= minutes
}

// remaining is the strict form used inside transactions: errors are returned
// to the caller instead of being absorbed.
func (s *QuotaService) remaining(ctx context.Context, db *gorm.DB, userID string) (float64, error) {
	u, err := repo.GetUser(ctx, db, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	used, err := repo.SumUsageSince(ctx, db, userID, s.now().Add(-QuotaWindow))
	if err != nil {
		return 0, err
	}

	quota := FreeMinutesPerPeriod
	if u.IsPremium {
		quota = PremiumMinutesPerPeriod
	}
	if left := quota - used; left > 0 {
		return left, nil
	}
	return 0, nil
}
