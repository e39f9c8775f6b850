package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgdb "github.com/campusdesk/campusdesk-backend/pkg/db"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
)

// Service is the license catalog: tiers, features and which tiers unlock which features.
// Lookups are exact and case-sensitive; misses return an error matching pkgerrors.ErrNotFound.
type Service interface {
	GetTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error)
	GetTierByExternalPriceID(ctx context.Context, priceID string) (*models.LicenseTier, error)
	GetTrialTier(ctx context.Context) (*models.LicenseTier, error)
	ListTiers(ctx context.Context) ([]models.LicenseTier, error)
	GetFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error)

	CreateTier(ctx context.Context, input CreateTierInput) (*models.LicenseTier, error)
	UpdateTier(ctx context.Context, id uuid.UUID, input UpdateTierInput) (*models.LicenseTier, error)
	CreateFeature(ctx context.Context, input CreateFeatureInput) (*models.Feature, error)
	MapFeature(ctx context.Context, tierID, featureID uuid.UUID) error
	UnmapFeature(ctx context.Context, tierID, featureID uuid.UUID) error
}

// CreateTierInput describes a new catalog tier.
type CreateTierInput struct {
	Title           string
	Description     *string
	Amount          decimal.Decimal
	Currency        string
	ValidityInDays  int
	ExternalPriceID *string
	LicensePlan     enums.LicensePlan
}

// UpdateTierInput patches a tier; nil fields are left untouched.
type UpdateTierInput struct {
	Title           *string
	Description     *string
	Amount          *decimal.Decimal
	ValidityInDays  *int
	ExternalPriceID *string
	IsActive        *bool
}

// CreateFeatureInput describes a new feature. A nil bound leaves that side
// of the activity window open.
type CreateFeatureInput struct {
	Code        string
	Title       string
	Description *string
	IsCountable bool
	ActiveFrom  *time.Time
	ActiveUntil *time.Time
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error) {
	tier, err := s.repo.FindTierByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "license tier not found", "lookup license tier")
	}
	return tier, nil
}

func (s *service) GetTierByExternalPriceID(ctx context.Context, priceID string) (*models.LicenseTier, error) {
	if priceID == "" {
		return nil, pkgerrors.NotFound("license tier not found")
	}
	tier, err := s.repo.FindTierByExternalPriceID(ctx, priceID)
	if err != nil {
		return nil, lookupError(err, "license tier not found", "lookup license tier by price")
	}
	return tier, nil
}

func (s *service) GetTrialTier(ctx context.Context) (*models.LicenseTier, error) {
	tier, err := s.repo.FindTierByPlan(ctx, enums.LicensePlanTrial)
	if err != nil {
		return nil, lookupError(err, "trial tier not configured", "lookup trial tier")
	}
	return tier, nil
}

func (s *service) ListTiers(ctx context.Context) ([]models.LicenseTier, error) {
	tiers, err := s.repo.ListTiers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list license tiers")
	}
	return tiers, nil
}

func (s *service) GetFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error) {
	if _, err := s.GetTierByID(ctx, tierID); err != nil {
		return nil, err
	}
	features, err := s.repo.ListFeaturesForTier(ctx, tierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tier features")
	}
	return features, nil
}

func (s *service) CreateTier(ctx context.Context, input CreateTierInput) (*models.LicenseTier, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.LicensePlan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid license plan")
	}
	if err := validatePricing(input.Amount, input.ValidityInDays); err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	tier := &models.LicenseTier{
		Title:           title,
		Description:     trimmedPtr(input.Description),
		Amount:          input.Amount,
		Currency:        currency,
		ValidityInDays:  input.ValidityInDays,
		ExternalPriceID: trimmedPtr(input.ExternalPriceID),
		LicensePlan:     input.LicensePlan,
		IsActive:        true,
	}
	if err := s.repo.CreateTier(ctx, tier); err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "external price id already mapped to a tier")
		}
		return nil, pkgerrors.Persistence(err, "create license tier")
	}
	return tier, nil
}

func (s *service) UpdateTier(ctx context.Context, id uuid.UUID, input UpdateTierInput) (*models.LicenseTier, error) {
	tier, err := s.GetTierByID(ctx, id)
	if err != nil {
		return nil, err
	}

	applyTierPatch(tier, input)
	if strings.TrimSpace(tier.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if err := validatePricing(tier.Amount, tier.ValidityInDays); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTier(ctx, tier); err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "external price id already mapped to a tier")
		}
		return nil, pkgerrors.Persistence(err, "update license tier")
	}
	return tier, nil
}

func (s *service) CreateFeature(ctx context.Context, input CreateFeatureInput) (*models.Feature, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.ActiveFrom != nil && input.ActiveUntil != nil && !input.ActiveUntil.After(*input.ActiveFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "active_until must be after active_from")
	}

	feature := &models.Feature{
		Code:        code,
		Title:       title,
		Description: trimmedPtr(input.Description),
		IsCountable: input.IsCountable,
		ActiveFrom:  utcPtr(input.ActiveFrom),
		ActiveUntil: utcPtr(input.ActiveUntil),
	}
	if err := s.repo.CreateFeature(ctx, feature); err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "feature code already exists")
		}
		return nil, pkgerrors.Persistence(err, "create feature")
	}
	return feature, nil
}

func (s *service) MapFeature(ctx context.Context, tierID, featureID uuid.UUID) error {
	if err := s.ensureMappingTargets(ctx, tierID, featureID); err != nil {
		return err
	}
	if err := s.repo.CreateMapping(ctx, tierID, featureID); err != nil {
		return pkgerrors.Persistence(err, "map feature to tier")
	}
	return nil
}

func (s *service) UnmapFeature(ctx context.Context, tierID, featureID uuid.UUID) error {
	if err := s.ensureMappingTargets(ctx, tierID, featureID); err != nil {
		return err
	}
	if err := s.repo.DeleteMapping(ctx, tierID, featureID); err != nil {
		return pkgerrors.Persistence(err, "unmap feature from tier")
	}
	return nil
}

func (s *service) ensureMappingTargets(ctx context.Context, tierID, featureID uuid.UUID) error {
	if _, err := s.GetTierByID(ctx, tierID); err != nil {
		return err
	}
	if _, err := s.repo.FindFeatureByID(ctx, featureID); err != nil {
		return lookupError(err, "feature not found", "lookup feature")
	}
	return nil
}

// validatePricing guards the proration math: per-diem division needs a positive validity.
func validatePricing(amount decimal.Decimal, validityInDays int) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be zero or greater")
	}
	if validityInDays <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validity_in_days must be greater than zero")
	}
	return nil
}

func applyTierPatch(tier *models.LicenseTier, input UpdateTierInput) {
	if input.Title != nil {
		tier.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		tier.Description = trimmedPtr(input.Description)
	}
	if input.Amount != nil {
		tier.Amount = *input.Amount
	}
	if input.ValidityInDays != nil {
		tier.ValidityInDays = *input.ValidityInDays
	}
	if input.ExternalPriceID != nil {
		tier.ExternalPriceID = trimmedPtr(input.ExternalPriceID)
	}
	if input.IsActive != nil {
		tier.IsActive = *input.IsActive
	}
}

func lookupError(err error, notFoundMsg, lookupMsg string) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.NotFound(notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, lookupMsg)
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
