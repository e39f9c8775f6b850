package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// Repository persists catalog tiers, features and their mappings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error)
	FindTierByExternalPriceID(ctx context.Context, priceID string) (*models.LicenseTier, error)
	FindTierByPlan(ctx context.Context, plan enums.LicensePlan) (*models.LicenseTier, error)
	ListTiers(ctx context.Context) ([]models.LicenseTier, error)
	CreateTier(ctx context.Context, tier *models.LicenseTier) error
	UpdateTier(ctx context.Context, tier *models.LicenseTier) error
	FindFeatureByID(ctx context.Context, id uuid.UUID) (*models.Feature, error)
	CreateFeature(ctx context.Context, feature *models.Feature) error
	ListFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error)
	CreateMapping(ctx context.Context, tierID, featureID uuid.UUID) error
	DeleteMapping(ctx context.Context, tierID, featureID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error) {
	var tier models.LicenseTier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) FindTierByExternalPriceID(ctx context.Context, priceID string) (*models.LicenseTier, error) {
	var tier models.LicenseTier
	if err := r.db.WithContext(ctx).Where("external_price_id = ?", priceID).First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) FindTierByPlan(ctx context.Context, plan enums.LicensePlan) (*models.LicenseTier, error) {
	var tier models.LicenseTier
	if err := r.db.WithContext(ctx).
		Where("license_plan = ? AND is_active = ?", plan, true).
		Order("created_at ASC").
		First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) ListTiers(ctx context.Context) ([]models.LicenseTier, error) {
	var tiers []models.LicenseTier
	if err := r.db.WithContext(ctx).
		Order("amount ASC").
		Order("title ASC").
		Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repository) CreateTier(ctx context.Context, tier *models.LicenseTier) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

func (r *repository) UpdateTier(ctx context.Context, tier *models.LicenseTier) error {
	return r.db.WithContext(ctx).Save(tier).Error
}

func (r *repository) FindFeatureByID(ctx context.Context, id uuid.UUID) (*models.Feature, error) {
	var feature models.Feature
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&feature).Error; err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *repository) CreateFeature(ctx context.Context, feature *models.Feature) error {
	return r.db.WithContext(ctx).Create(feature).Error
}

func (r *repository) ListFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error) {
	var features []models.Feature
	if err := r.db.WithContext(ctx).
		Joins("JOIN feature_license_mappings flm ON flm.feature_id = features.id").
		Where("flm.license_tier_id = ?", tierID).
		Order("features.code ASC").
		Find(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

func (r *repository) CreateMapping(ctx context.Context, tierID, featureID uuid.UUID) error {
	mapping := models.FeatureLicenseMapping{LicenseTierID: tierID, FeatureID: featureID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&mapping).Error
}

func (r *repository) DeleteMapping(ctx context.Context, tierID, featureID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("license_tier_id = ? AND feature_id = ?", tierID, featureID).
		Delete(&models.FeatureLicenseMapping{}).Error
}
