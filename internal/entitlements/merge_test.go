package entitlements

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

func TestApplySubscriptionCopiesNonEmptyFields(t *testing.T) {
	tierID := uuid.New()
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	price := decimal.RequireFromString("399.00")
	status := enums.LicenseStatusPastDue
	cancelled := false

	target := &models.UserLicenseDetail{
		PlanName:           "monthly",
		ProductName:        "Starter",
		ExternalCustomerID: strPtr("cus_1"),
		CancelAt:           &end,
		IsCancelled:        true,
	}
	ApplySubscription(target, LicensePatch{
		LicenseTierID:          &tierID,
		ExternalSubscriptionID: "sub_1",
		ExternalPriceID:        "price_pro",
		ExpiryDate:             &end,
		ActualPaidPrice:        &price,
		Status:                 &status,
		IsCancelled:            &cancelled,
		ClearCancellation:      true,
		Metadata:               map[string]any{"source": "webhook"},
	})

	if target.LicenseTierID == nil || *target.LicenseTierID != tierID {
		t.Fatalf("expected tier %s, got %v", tierID, target.LicenseTierID)
	}
	if got := *target.ExternalCustomerID; got != "cus_1" {
		t.Fatalf("customer id should be untouched, got %q", got)
	}
	if got := *target.ExternalSubscriptionID; got != "sub_1" {
		t.Fatalf("unexpected subscription id %q", got)
	}
	if target.ProductName != "Starter" {
		t.Fatalf("empty product name should not overwrite, got %q", target.ProductName)
	}
	if !target.ExpiryDate.Equal(end) {
		t.Fatalf("unexpected expiry %v", target.ExpiryDate)
	}
	if !target.ActualPaidPrice.Equal(price) {
		t.Fatalf("unexpected price %s", target.ActualPaidPrice)
	}
	if target.Status != enums.LicenseStatusPastDue {
		t.Fatalf("unexpected status %s", target.Status)
	}
	if target.IsCancelled || target.CancelAt != nil {
		t.Fatalf("expected cancellation cleared, got cancelled=%v cancelAt=%v", target.IsCancelled, target.CancelAt)
	}
	if target.GatewayMetadata["source"] != "webhook" {
		t.Fatalf("expected metadata merged, got %v", target.GatewayMetadata)
	}
}

func TestApplySubscriptionIgnoresInvalidStatus(t *testing.T) {
	bogus := enums.LicenseStatus("paused")
	target := &models.UserLicenseDetail{Status: enums.LicenseStatusActive}
	ApplySubscription(target, LicensePatch{Status: &bogus})
	if target.Status != enums.LicenseStatusActive {
		t.Fatalf("expected status unchanged, got %s", target.Status)
	}
}

func TestMergeInvoiceKeepsIdentity(t *testing.T) {
	id := uuid.New()
	target := &models.Invoice{ID: id, ExternalInvoiceID: "in_1", Currency: "usd"}
	MergeInvoice(target, models.Invoice{
		ID:                uuid.New(),
		ExternalInvoiceID: "in_2",
		AmountPaid:        decimal.NewFromInt(10),
	})
	if target.ID != id || target.ExternalInvoiceID != "in_1" {
		t.Fatalf("identity changed: %+v", target)
	}
	if !target.AmountPaid.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected amount paid %s", target.AmountPaid)
	}
	if target.Currency != "usd" {
		t.Fatalf("empty currency should not overwrite, got %q", target.Currency)
	}
}
