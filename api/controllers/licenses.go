package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/api/middleware"
	"github.com/campusdesk/campusdesk-backend/api/responses"
	"github.com/campusdesk/campusdesk-backend/api/validators"
	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

// LicenseService is the slice of the lifecycle engine the HTTP layer uses.
type LicenseService interface {
	GrantTrial(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error)
	ResolveActiveLicense(ctx context.Context, userID uuid.UUID) (*licenses.Resolution, error)
	UpgradeTier(ctx context.Context, userID, newTierID uuid.UUID) (*licenses.UpgradeResult, error)
	PreviewUpgrade(ctx context.Context, userID, newTierID uuid.UUID) (*licenses.UpgradePreview, error)
	LicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error)
	DeleteLicense(ctx context.Context, licenseID uuid.UUID) error
}

type upgradeRequest struct {
	TierID string `json:"tier_id" validate:"required,uuid"`
}

type upgradeResponse struct {
	License   *licenseResponse  `json:"license"`
	Previous  *licenseResponse  `json:"previous"`
	Proration prorationResponse `json:"proration"`
}

type upgradePreviewResponse struct {
	CurrentTier     *tierResponse     `json:"current_tier"`
	NewTier         *tierResponse     `json:"new_tier"`
	Proration       prorationResponse `json:"proration"`
	GatewayProrated string            `json:"gateway_prorated_amount"`
}

// LicenseCurrent resolves the caller's license, applying any due transitions.
func LicenseCurrent(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireLicenseCaller(w, r, svc, logg)
		if !ok {
			return
		}

		resolution, err := svc.ResolveActiveLicense(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolutionResponseFrom(resolution))
	}
}

// LicenseHistory lists every license the caller has held, newest expiry first.
func LicenseHistory(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireLicenseCaller(w, r, svc, logg)
		if !ok {
			return
		}

		history, err := svc.LicenseHistory(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]*licenseResponse, 0, len(history))
		for i := range history {
			items = append(items, licenseResponseFromModel(&history[i]))
		}
		responses.WriteSuccess(w, map[string]any{"licenses": items})
	}
}

// LicenseGrantTrial starts the caller's one-time trial.
func LicenseGrantTrial(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireLicenseCaller(w, r, svc, logg)
		if !ok {
			return
		}

		granted, err := svc.GrantTrial(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, licenseResponseFromModel(granted))
	}
}

// LicenseUpgrade moves the caller's paid license to a higher tier.
func LicenseUpgrade(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireLicenseCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload upgradeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tierID, err := uuid.Parse(payload.TierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier_id"))
			return
		}

		result, err := svc.UpgradeTier(r.Context(), userID, tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, upgradeResponse{
			License:   licenseResponseFromModel(result.License),
			Previous:  licenseResponseFromModel(result.Previous),
			Proration: prorationResponseFrom(result.Proration),
		})
	}
}

// LicenseUpgradePreview quotes an upgrade without changing anything.
func LicenseUpgradePreview(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireLicenseCaller(w, r, svc, logg)
		if !ok {
			return
		}

		tierID, err := validators.ParseUUIDQuery(r, "tier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.PreviewUpgrade(r.Context(), userID, tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, upgradePreviewResponse{
			CurrentTier:     tierResponseFromModel(preview.CurrentTier),
			NewTier:         tierResponseFromModel(preview.NewTier),
			Proration:       prorationResponseFrom(preview.Proration),
			GatewayProrated: preview.GatewayProrated.StringFixed(2),
		})
	}
}

// AdminLicenseDelete removes a license record and its invoices.
func AdminLicenseDelete(svc LicenseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithLicenseID(ctx, licenseID.String())
		}
		if err := svc.DeleteLicense(ctx, licenseID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "admin.license.deleted")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requireLicenseCaller(w http.ResponseWriter, r *http.Request, svc LicenseService, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
		return uuid.Nil, false
	}
	return requireUser(w, r, logg)
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}
