package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type tierLookup interface {
	GetTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error)
}

type licenseStore interface {
	GetActiveLicense(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error)
	GetLicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error)
	ListInvoices(ctx context.Context, licenseID uuid.UUID) ([]models.Invoice, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Users   userLookup
	Catalog tierLookup
	Store   licenseStore
	Gateway subscriptions.Gateway
	Logger  *logger.Logger
}

// Service starts hosted checkouts and customer portal sessions.
type Service struct {
	users   userLookup
	catalog tierLookup
	store   licenseStore
	gateway subscriptions.Gateway
	logg    *logger.Logger
}

// CheckoutInput requests a hosted checkout for one tier.
type CheckoutInput struct {
	UserID         uuid.UUID
	TierID         uuid.UUID
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, errors.New("users lookup is required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if params.Store == nil {
		return nil, errors.New("entitlement store is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	return &Service{
		users:   params.Users,
		catalog: params.Catalog,
		store:   params.Store,
		gateway: params.Gateway,
		logg:    params.Logger,
	}, nil
}

// StartCheckout opens a hosted checkout for a paid tier. Users already holding
// a live paid subscription must upgrade instead.
func (s *Service) StartCheckout(ctx context.Context, input CheckoutInput) (*subscriptions.CheckoutSession, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier_id is required")
	}
	if strings.TrimSpace(input.SuccessURL) == "" || strings.TrimSpace(input.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success_url and cancel_url are required")
	}

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	tier, err := s.catalog.GetTierByID(ctx, input.TierID)
	if err != nil {
		return nil, err
	}
	if !tier.IsActive || tier.LicensePlan == enums.LicensePlanTrial || tier.ExternalPriceID == nil || *tier.ExternalPriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier is not available for purchase")
	}

	customerID := ""
	current, err := s.store.GetActiveLicense(ctx, input.UserID)
	switch {
	case err == nil:
		if current.HasGatewaySubscription() {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrLicenseAlreadyActive, "a subscription is already active; upgrade it instead")
		}
		if current.ExternalCustomerID != nil {
			customerID = *current.ExternalCustomerID
		}
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return nil, err
	}
	if customerID == "" {
		customerID = s.knownCustomerID(ctx, input.UserID)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, subscriptions.CheckoutRequest{
		PriceID:        *tier.ExternalPriceID,
		CustomerEmail:  user.Email,
		CustomerID:     customerID,
		UserID:         user.ID,
		SuccessURL:     input.SuccessURL,
		CancelURL:      input.CancelURL,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":    user.ID.String(),
			"tier_id":    tier.ID.String(),
			"session_id": session.ID,
		})
		s.logg.Info(logCtx, "checkout session created")
	}
	return session, nil
}

// OpenPortal returns a customer portal URL for the user's billing identity.
func (s *Service) OpenPortal(ctx context.Context, userID uuid.UUID, returnURL string) (string, error) {
	if userID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if strings.TrimSpace(returnURL) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "return_url is required")
	}
	customerID := s.knownCustomerID(ctx, userID)
	if customerID == "" {
		return "", pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrCheckoutRequired, "no billing account exists yet; start a checkout first")
	}
	return s.gateway.GetCustomerPortalURL(ctx, customerID, returnURL)
}

// ListInvoices returns the invoices of the user's most recent paid license.
func (s *Service) ListInvoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	history, err := s.store.GetLicenseHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, record := range history {
		if record.HasGatewaySubscription() {
			return s.store.ListInvoices(ctx, record.ID)
		}
	}
	return []models.Invoice{}, nil
}

// knownCustomerID finds the newest gateway customer id across the user's records.
func (s *Service) knownCustomerID(ctx context.Context, userID uuid.UUID) string {
	history, err := s.store.GetLicenseHistory(ctx, userID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "load license history for customer id: "+err.Error())
		}
		return ""
	}
	for _, record := range history {
		if record.ExternalCustomerID != nil && *record.ExternalCustomerID != "" {
			return *record.ExternalCustomerID
		}
	}
	return ""
}
