package licenses

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
)

const day = 24 * time.Hour

// Proration is the unused value of the current tier carried into a new one
// as extra days of validity.
type Proration struct {
	RemainingDays  int
	Credit         decimal.Decimal
	ExtraDays      int
	ValidityInDays int
}

// RemainingDays counts whole days left before expiry, never negative.
func RemainingDays(expiry, now time.Time) int {
	if !expiry.After(now) {
		return 0
	}
	return int(expiry.Sub(now) / day)
}

// ComputeProration converts the remaining value of current into days of next.
// Extra days are floored from the exact credit; Credit is rounded to cents.
func ComputeProration(current, next models.LicenseTier, expiry, now time.Time) (Proration, error) {
	if current.ValidityInDays <= 0 || next.ValidityInDays <= 0 {
		return Proration{}, pkgerrors.New(pkgerrors.CodeInternal, "tier validity must be positive")
	}

	remaining := RemainingDays(expiry, now)
	credit := current.PerDiem().Mul(decimal.NewFromInt(int64(remaining)))

	extra := 0
	if perDiemNew := next.PerDiem(); perDiemNew.IsPositive() {
		extra = int(credit.Div(perDiemNew).Floor().IntPart())
	}

	return Proration{
		RemainingDays:  remaining,
		Credit:         credit.Round(2),
		ExtraDays:      extra,
		ValidityInDays: next.ValidityInDays + extra,
	}, nil
}
