package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feature is an entitlement key unlocked by one or more tiers.
type Feature struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Code        string     `gorm:"column:code;not null;uniqueIndex"`
	Title       string     `gorm:"column:title;not null"`
	Description *string    `gorm:"column:description"`
	IsCountable bool       `gorm:"column:is_countable;not null;default:false"`
	UsageCount  int        `gorm:"column:usage_count;not null;default:0"`
	ActiveFrom  *time.Time `gorm:"column:active_from"`
	ActiveUntil *time.Time `gorm:"column:active_until"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (f *Feature) BeforeCreate(_ *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// ActiveAt reports whether the feature's activity window covers at.
func (f Feature) ActiveAt(at time.Time) bool {
	if f.ActiveFrom != nil && at.Before(*f.ActiveFrom) {
		return false
	}
	if f.ActiveUntil != nil && !at.Before(*f.ActiveUntil) {
		return false
	}
	return true
}

// FeatureLicenseMapping links a tier to a feature it unlocks.
type FeatureLicenseMapping struct {
	LicenseTierID uuid.UUID `gorm:"column:license_tier_id;type:uuid;primaryKey"`
	FeatureID     uuid.UUID `gorm:"column:feature_id;type:uuid;primaryKey"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
