package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// TrialSubscriptionID marks records granted by the trial path instead of the gateway.
const TrialSubscriptionID = "trial_period"

// UserLicenseDetail is one license grant held by a user.
type UserLicenseDetail struct {
	ID                     uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID                 uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	LicenseTierID          *uuid.UUID          `gorm:"column:license_tier_id;type:uuid"`
	ExternalCustomerID     *string             `gorm:"column:external_customer_id"`
	ExternalSubscriptionID *string             `gorm:"column:external_subscription_id;index"`
	ExternalPriceID        *string             `gorm:"column:external_price_id"`
	ExternalProductID      *string             `gorm:"column:external_product_id"`
	PlanName               string              `gorm:"column:plan_name;not null;default:''"`
	ProductName            string              `gorm:"column:product_name;not null;default:''"`
	StartDate              time.Time           `gorm:"column:start_date;not null"`
	ExpiryDate             time.Time           `gorm:"column:expiry_date;not null"`
	ActualPaidPrice        decimal.Decimal     `gorm:"column:actual_paid_price;type:numeric(12,2);not null"`
	Currency               string              `gorm:"column:currency;not null;default:'usd'"`
	Status                 enums.LicenseStatus `gorm:"column:status;type:license_status;not null"`
	IsCancelled            bool                `gorm:"column:is_cancelled;not null;default:false"`
	IsSuspended            bool                `gorm:"column:is_suspended;not null;default:false"`
	CancelAt               *time.Time          `gorm:"column:cancel_at"`
	CancelledOn            *time.Time          `gorm:"column:cancelled_on"`
	ValidityInDays         int                 `gorm:"column:validity_in_days;not null"`
	DiscountPercentage     decimal.Decimal     `gorm:"column:discount_percentage;type:numeric(5,2);not null"`
	GatewayMetadata        datatypes.JSONMap   `gorm:"column:gateway_metadata"`
	CreatedAt              time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"column:updated_at"`
}

func (d *UserLicenseDetail) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// IsTrial reports whether the record came from the trial grant path.
func (d UserLicenseDetail) IsTrial() bool {
	return d.ExternalSubscriptionID != nil && *d.ExternalSubscriptionID == TrialSubscriptionID
}

// HasGatewaySubscription reports whether a paid gateway subscription backs the record.
func (d UserLicenseDetail) HasGatewaySubscription() bool {
	return d.ExternalSubscriptionID != nil && *d.ExternalSubscriptionID != "" && !d.IsTrial()
}

// ExpiredAt reports whether the record's validity ended before at.
func (d UserLicenseDetail) ExpiredAt(at time.Time) bool {
	return d.ExpiryDate.Before(at)
}

// Invoice records a gateway billing event tied to a license.
type Invoice struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserLicenseDetailID uuid.UUID       `gorm:"column:user_license_detail_id;type:uuid;not null;uniqueIndex:idx_invoices_license_external"`
	ExternalInvoiceID   string          `gorm:"column:external_invoice_id;not null;uniqueIndex:idx_invoices_license_external"`
	Currency            string          `gorm:"column:currency;not null;default:'usd'"`
	AmountPaid          decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	AmountDue           decimal.Decimal `gorm:"column:amount_due;type:numeric(12,2);not null"`
	AmountRemaining     decimal.Decimal `gorm:"column:amount_remaining;type:numeric(12,2);not null"`
	PeriodStart         *time.Time      `gorm:"column:period_start"`
	PeriodEnd           *time.Time      `gorm:"column:period_end"`
	DiscountPercentage  decimal.Decimal `gorm:"column:discount_percentage;type:numeric(5,2);not null"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at"`
}

func (i *Invoice) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
