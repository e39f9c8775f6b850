package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/api/middleware"
	"github.com/campusdesk/campusdesk-backend/api/responses"
	"github.com/campusdesk/campusdesk-backend/api/validators"
	billingsvc "github.com/campusdesk/campusdesk-backend/internal/billing"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

// Service describes the billing flows used by the HTTP controllers.
type Service interface {
	StartCheckout(ctx context.Context, input billingsvc.CheckoutInput) (*subscriptions.CheckoutSession, error)
	OpenPortal(ctx context.Context, userID uuid.UUID, returnURL string) (string, error)
	ListInvoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
}

type checkoutRequest struct {
	TierID     string `json:"tier_id" validate:"required,uuid"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

type invoiceResponse struct {
	ID                  uuid.UUID  `json:"id"`
	UserLicenseDetailID uuid.UUID  `json:"user_license_detail_id"`
	ExternalInvoiceID   string     `json:"external_invoice_id"`
	Currency            string     `json:"currency"`
	AmountPaid          string     `json:"amount_paid"`
	AmountDue           string     `json:"amount_due"`
	AmountRemaining     string     `json:"amount_remaining"`
	DiscountPercentage  string     `json:"discount_percentage"`
	PeriodStart         *time.Time `json:"period_start,omitempty"`
	PeriodEnd           *time.Time `json:"period_end,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Checkout opens a hosted checkout for the requested tier.
func Checkout(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := billingCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tierID, err := uuid.Parse(payload.TierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier_id"))
			return
		}

		session, err := svc.StartCheckout(r.Context(), billingsvc.CheckoutInput{
			UserID:         userID,
			TierID:         tierID,
			SuccessURL:     payload.SuccessURL,
			CancelURL:      payload.CancelURL,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{SessionID: session.ID, URL: session.URL})
	}
}

// Portal returns a customer portal link for managing payment details.
func Portal(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := billingCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload portalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url, err := svc.OpenPortal(r.Context(), userID, payload.ReturnURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

// Invoices lists the invoices of the caller's latest paid license.
func Invoices(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := billingCaller(w, r, svc, logg)
		if !ok {
			return
		}

		invoices, err := svc.ListInvoices(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]invoiceResponse, 0, len(invoices))
		for _, inv := range invoices {
			items = append(items, toInvoiceResponse(inv))
		}
		responses.WriteSuccess(w, map[string]any{"invoices": items})
	}
}

func billingCaller(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
		return uuid.Nil, false
	}
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

func toInvoiceResponse(inv models.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                  inv.ID,
		UserLicenseDetailID: inv.UserLicenseDetailID,
		ExternalInvoiceID:   inv.ExternalInvoiceID,
		Currency:            inv.Currency,
		AmountPaid:          inv.AmountPaid.StringFixed(2),
		AmountDue:           inv.AmountDue.StringFixed(2),
		AmountRemaining:     inv.AmountRemaining.StringFixed(2),
		DiscountPercentage:  inv.DiscountPercentage.StringFixed(2),
		PeriodStart:         inv.PeriodStart,
		PeriodEnd:           inv.PeriodEnd,
		CreatedAt:           inv.CreatedAt,
	}
}
