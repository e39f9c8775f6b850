package entitlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// LicensePatch carries values reported by the payment gateway. Nil pointers and
// empty strings leave the target untouched.
type LicensePatch struct {
	LicenseTierID          *uuid.UUID
	ExternalCustomerID     string
	ExternalSubscriptionID string
	ExternalPriceID        string
	ExternalProductID      string
	PlanName               string
	ProductName            string
	Currency               string
	StartDate              *time.Time
	ExpiryDate             *time.Time
	ActualPaidPrice        *decimal.Decimal
	DiscountPercentage     *decimal.Decimal
	Status                 *enums.LicenseStatus
	ValidityInDays         *int
	IsCancelled            *bool
	CancelAt               *time.Time
	CancelledOn            *time.Time
	// ClearCancellation resets CancelAt and CancelledOn when a subscription resumes.
	ClearCancellation bool
	Metadata          map[string]any
}

// ApplySubscription merges gateway values onto target.
func ApplySubscription(target *models.UserLicenseDetail, patch LicensePatch) {
	if target == nil {
		return
	}
	if patch.LicenseTierID != nil {
		id := *patch.LicenseTierID
		target.LicenseTierID = &id
	}
	setString(&target.ExternalCustomerID, patch.ExternalCustomerID)
	setString(&target.ExternalSubscriptionID, patch.ExternalSubscriptionID)
	setString(&target.ExternalPriceID, patch.ExternalPriceID)
	setString(&target.ExternalProductID, patch.ExternalProductID)
	if patch.PlanName != "" {
		target.PlanName = patch.PlanName
	}
	if patch.ProductName != "" {
		target.ProductName = patch.ProductName
	}
	if patch.Currency != "" {
		target.Currency = patch.Currency
	}
	if patch.StartDate != nil && !patch.StartDate.IsZero() {
		target.StartDate = patch.StartDate.UTC()
	}
	if patch.ExpiryDate != nil && !patch.ExpiryDate.IsZero() {
		target.ExpiryDate = patch.ExpiryDate.UTC()
	}
	if patch.ActualPaidPrice != nil {
		target.ActualPaidPrice = *patch.ActualPaidPrice
	}
	if patch.DiscountPercentage != nil {
		target.DiscountPercentage = *patch.DiscountPercentage
	}
	if patch.Status != nil && patch.Status.IsValid() {
		target.Status = *patch.Status
	}
	if patch.ValidityInDays != nil && *patch.ValidityInDays > 0 {
		target.ValidityInDays = *patch.ValidityInDays
	}
	if patch.IsCancelled != nil {
		target.IsCancelled = *patch.IsCancelled
	}
	if patch.ClearCancellation {
		target.CancelAt = nil
		target.CancelledOn = nil
	}
	if patch.CancelAt != nil {
		at := patch.CancelAt.UTC()
		target.CancelAt = &at
	}
	if patch.CancelledOn != nil {
		at := patch.CancelledOn.UTC()
		target.CancelledOn = &at
	}
	if len(patch.Metadata) > 0 {
		if target.GatewayMetadata == nil {
			target.GatewayMetadata = map[string]any{}
		}
		for k, v := range patch.Metadata {
			target.GatewayMetadata[k] = v
		}
	}
}

// MergeInvoice copies the billing fields of src onto target. Identity columns
// are left alone.
func MergeInvoice(target *models.Invoice, src models.Invoice) {
	if target == nil {
		return
	}
	if src.Currency != "" {
		target.Currency = src.Currency
	}
	target.AmountPaid = src.AmountPaid
	target.AmountDue = src.AmountDue
	target.AmountRemaining = src.AmountRemaining
	target.DiscountPercentage = src.DiscountPercentage
	if src.PeriodStart != nil {
		target.PeriodStart = src.PeriodStart
	}
	if src.PeriodEnd != nil {
		target.PeriodEnd = src.PeriodEnd
	}
}

func setString(dst **string, value string) {
	if value == "" {
		return
	}
	v := value
	*dst = &v
}
