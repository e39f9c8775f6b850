package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// LicenseTier is a purchasable license level in the catalog.
type LicenseTier struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Title           string            `gorm:"column:title;not null"`
	Description     *string           `gorm:"column:description"`
	Amount          decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string            `gorm:"column:currency;not null;default:'usd'"`
	ValidityInDays  int               `gorm:"column:validity_in_days;not null"`
	ExternalPriceID *string           `gorm:"column:external_price_id;uniqueIndex"`
	LicensePlan     enums.LicensePlan `gorm:"column:license_plan;type:license_plan;not null"`
	IsActive        bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *LicenseTier) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PerDiem returns the tier price for a single day of validity.
func (t LicenseTier) PerDiem() decimal.Decimal {
	if t.ValidityInDays <= 0 {
		return decimal.Zero
	}
	return t.Amount.Div(decimal.NewFromInt(int64(t.ValidityInDays)))
}
