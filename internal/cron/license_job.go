package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

const defaultSweepBatchSize = 200

// LicenseExpirySweepJobParams configures the scheduled lifecycle sweep.
type LicenseExpirySweepJobParams struct {
	Logger    *logger.Logger
	Store     sweepCandidateLister
	Licenses  licenseResolver
	BatchSize int
	Now       func() time.Time
}

type sweepCandidateLister interface {
	ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.UserLicenseDetail, error)
}

type licenseResolver interface {
	ResolveActiveLicense(ctx context.Context, userID uuid.UUID) (*licenses.Resolution, error)
}

// NewLicenseExpirySweepJob builds the sweep that applies due transitions
// without waiting for the user to make a request.
func NewLicenseExpirySweepJob(params LicenseExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("license store required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &licenseExpirySweepJob{
		logg:     params.Logger,
		store:    params.Store,
		licenses: params.Licenses,
		batch:    batch,
		now:      now,
	}, nil
}

type licenseExpirySweepJob struct {
	logg     *logger.Logger
	store    sweepCandidateLister
	licenses licenseResolver
	batch    int
	now      func() time.Time
}

func (j *licenseExpirySweepJob) Name() string { return "license-expiry-sweep" }

func (j *licenseExpirySweepJob) Run(ctx context.Context) error {
	candidates, err := j.store.ListDueForSweep(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("list licenses due for sweep: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(candidates))
	states := map[string]int{}
	var errs error
	for _, record := range candidates {
		if _, ok := seen[record.UserID]; ok {
			continue
		}
		seen[record.UserID] = struct{}{}

		resolution, err := j.licenses.ResolveActiveLicense(ctx, record.UserID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("resolve user %s: %w", record.UserID, err))
			continue
		}
		states[string(resolution.State)]++
	}

	fields := map[string]any{
		"candidates": len(candidates),
		"users":      len(seen),
		"failed":     len(multierr.Errors(errs)),
	}
	for state, count := range states {
		fields["state_"+state] = count
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "license expiry sweep complete")
	return errs
}
