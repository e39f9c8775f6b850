// Package permissions decides whether a user may use a feature. Every
// feature-gated operation goes through Gate.CheckFeatureAccess.
package permissions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
	"github.com/campusdesk/campusdesk-backend/pkg/metrics"
)

type licenseResolver interface {
	ResolveActiveLicense(ctx context.Context, userID uuid.UUID) (*licenses.Resolution, error)
}

type featureCatalog interface {
	GetFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error)
}

// Decision is the outcome of a feature access check.
type Decision struct {
	Allowed     bool
	State       licenses.State
	TierID      *uuid.UUID
	FeatureCode string
	Message     string
}

// Gate is the feature access choke point.
type Gate interface {
	// CheckFeatureAccess returns the decision and, for denials, an error
	// matching ErrNoValidLicense or ErrFeatureNotEntitled.
	CheckFeatureAccess(ctx context.Context, userID uuid.UUID, featureCode string) (*Decision, error)
}

type gate struct {
	licenses licenseResolver
	catalog  featureCatalog
	metrics  *metrics.EntitlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewGate builds the permission gate.
func NewGate(resolver licenseResolver, catalog featureCatalog, m *metrics.EntitlementMetrics, logg *logger.Logger) (Gate, error) {
	if resolver == nil {
		return nil, errors.New("license resolver required")
	}
	if catalog == nil {
		return nil, errors.New("feature catalog required")
	}
	return &gate{
		licenses: resolver,
		catalog:  catalog,
		metrics:  m,
		logg:     logg,
		now:      time.Now,
	}, nil
}

const (
	msgAllowed     = "access granted"
	msgNoLicense   = "an active license is required for this feature"
	msgRenew       = "access granted; renew your license before it expires"
	msgNotEntitled = "your license tier does not include this feature"
	msgNoTier      = "your license is not linked to a tier with features"
)

func (g *gate) CheckFeatureAccess(ctx context.Context, userID uuid.UUID, featureCode string) (*Decision, error) {
	code := strings.TrimSpace(featureCode)
	if userID == uuid.Nil || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and feature code are required")
	}
	if g.logg != nil {
		ctx = g.logg.WithFields(ctx, map[string]any{
			"user_id":      userID.String(),
			"feature_code": code,
		})
	}

	resolution, err := g.licenses.ResolveActiveLicense(ctx, userID)
	if err != nil {
		g.record(ctx, metrics.OutcomeResolveFailure, "entitlement check failed", err)
		return nil, err
	}

	decision := &Decision{State: resolution.State, FeatureCode: code}
	if resolution.License != nil {
		decision.TierID = resolution.License.LicenseTierID
	}

	if !resolution.State.Entitled() || resolution.License == nil {
		decision.Message = msgNoLicense
		g.record(ctx, metrics.OutcomeNoLicense, "feature denied: no valid license", nil)
		return decision, pkgerrors.Wrap(pkgerrors.CodeForbidden, pkgerrors.ErrNoValidLicense, msgNoLicense)
	}
	// a valid license without a tier has an empty feature set
	if resolution.License.LicenseTierID == nil {
		decision.Message = msgNoTier
		g.record(ctx, metrics.OutcomeNotEntitled, "feature denied: license has no tier", nil)
		return decision, pkgerrors.Wrap(pkgerrors.CodeForbidden, pkgerrors.ErrFeatureNotEntitled, msgNoTier)
	}

	features, err := g.catalog.GetFeaturesForTier(ctx, *resolution.License.LicenseTierID)
	if err != nil {
		g.record(ctx, metrics.OutcomeResolveFailure, "load tier features failed", err)
		return nil, err
	}
	if !includes(features, code, g.now().UTC()) {
		decision.Message = msgNotEntitled
		g.record(ctx, metrics.OutcomeNotEntitled, "feature denied: not in tier", nil)
		return decision, pkgerrors.Wrap(pkgerrors.CodeForbidden, pkgerrors.ErrFeatureNotEntitled, msgNotEntitled)
	}

	decision.Allowed = true
	decision.Message = msgAllowed
	if resolution.State == licenses.StatePendingRenewal {
		decision.Message = msgRenew
	}
	g.record(ctx, metrics.OutcomeAllowed, "feature allowed", nil)
	return decision, nil
}

func includes(features []models.Feature, code string, at time.Time) bool {
	for _, f := range features {
		if f.Code == code {
			return f.ActiveAt(at)
		}
	}
	return false
}

func (g *gate) record(ctx context.Context, outcome, msg string, err error) {
	g.metrics.Record(outcome)
	if g.logg == nil {
		return
	}
	ctx = g.logg.WithField(ctx, "outcome", outcome)
	switch {
	case err != nil:
		g.logg.Error(ctx, msg, err)
	case outcome == metrics.OutcomeAllowed:
		g.logg.Debug(ctx, msg)
	default:
		g.logg.Info(ctx, msg)
	}
}
