package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// LicenseTrialGrantedEvent is emitted when a user starts a trial.
type LicenseTrialGrantedEvent struct {
	LicenseID  uuid.UUID `json:"license_id"`
	UserID     uuid.UUID `json:"user_id"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// LicenseStatusChangedEvent covers expiry, renewal-pending and deactivation
// transitions of a single record.
type LicenseStatusChangedEvent struct {
	LicenseID  uuid.UUID           `json:"license_id"`
	UserID     uuid.UUID           `json:"user_id"`
	From       enums.LicenseStatus `json:"from"`
	To         enums.LicenseStatus `json:"to"`
	ExpiryDate time.Time           `json:"expiry_date"`
	Reason     string              `json:"reason,omitempty"`
}

// LicenseUpgradedEvent records a prorated tier switch.
type LicenseUpgradedEvent struct {
	LicenseID         uuid.UUID       `json:"license_id"`
	UserID            uuid.UUID       `json:"user_id"`
	PreviousLicenseID uuid.UUID       `json:"previous_license_id"`
	FromTierID        uuid.UUID       `json:"from_tier_id"`
	ToTierID          uuid.UUID       `json:"to_tier_id"`
	ExtraDays         int             `json:"extra_days"`
	ValidityInDays    int             `json:"validity_in_days"`
	Credit            decimal.Decimal `json:"credit"`
	ExpiryDate        time.Time       `json:"expiry_date"`
}

// LicenseSubscriptionSyncedEvent is emitted after gateway state is ingested.
type LicenseSubscriptionSyncedEvent struct {
	LicenseID      uuid.UUID           `json:"license_id"`
	UserID         uuid.UUID           `json:"user_id"`
	SubscriptionID string              `json:"subscription_id"`
	Status         enums.LicenseStatus `json:"status"`
	InvoiceID      string              `json:"invoice_id,omitempty"`
	Created        bool                `json:"created"`
}

// LicenseTierReconciledEvent reports a tier id corrected from the catalog.
type LicenseTierReconciledEvent struct {
	LicenseID  uuid.UUID  `json:"license_id"`
	UserID     uuid.UUID  `json:"user_id"`
	FromTierID *uuid.UUID `json:"from_tier_id,omitempty"`
	ToTierID   uuid.UUID  `json:"to_tier_id"`
	PriceID    string     `json:"price_id"`
}
