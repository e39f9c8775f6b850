package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/api/responses"
	"github.com/campusdesk/campusdesk-backend/api/validators"
	"github.com/campusdesk/campusdesk-backend/internal/catalog"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

// CatalogService is the catalog surface exposed over HTTP.
type CatalogService interface {
	GetTierByID(ctx context.Context, id uuid.UUID) (*models.LicenseTier, error)
	ListTiers(ctx context.Context) ([]models.LicenseTier, error)
	GetFeaturesForTier(ctx context.Context, tierID uuid.UUID) ([]models.Feature, error)
	CreateTier(ctx context.Context, input catalog.CreateTierInput) (*models.LicenseTier, error)
	UpdateTier(ctx context.Context, id uuid.UUID, input catalog.UpdateTierInput) (*models.LicenseTier, error)
	CreateFeature(ctx context.Context, input catalog.CreateFeatureInput) (*models.Feature, error)
	MapFeature(ctx context.Context, tierID, featureID uuid.UUID) error
	UnmapFeature(ctx context.Context, tierID, featureID uuid.UUID) error
}

const maxTitleLength = 200

type tierCreateRequest struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Description     *string         `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	ValidityInDays  int             `json:"validity_in_days" validate:"required,min=1"`
	ExternalPriceID *string         `json:"external_price_id"`
	LicensePlan     string          `json:"license_plan" validate:"required"`
}

type tierPatchRequest struct {
	Title           *string          `json:"title" validate:"omitempty,max=200"`
	Description     *string          `json:"description"`
	Amount          *decimal.Decimal `json:"amount"`
	ValidityInDays  *int             `json:"validity_in_days" validate:"omitempty,min=1"`
	ExternalPriceID *string          `json:"external_price_id"`
	IsActive        *bool            `json:"is_active"`
}

type featureCreateRequest struct {
	Code        string     `json:"code" validate:"required,max=100"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description *string    `json:"description"`
	IsCountable bool       `json:"is_countable"`
	ActiveFrom  *time.Time `json:"active_from"`
	ActiveUntil *time.Time `json:"active_until"`
}

// CatalogTiers lists the active catalog tiers.
func CatalogTiers(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		tiers, err := svc.ListTiers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]*tierResponse, 0, len(tiers))
		for i := range tiers {
			items = append(items, tierResponseFromModel(&tiers[i]))
		}
		responses.WriteSuccess(w, map[string]any{"tiers": items})
	}
}

func CatalogTier(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tier, err := svc.GetTierByID(r.Context(), tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tierResponseFromModel(tier))
	}
}

func CatalogTierFeatures(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		features, err := svc.GetFeaturesForTier(r.Context(), tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]*featureResponse, 0, len(features))
		for i := range features {
			items = append(items, featureResponseFromModel(&features[i]))
		}
		responses.WriteSuccess(w, map[string]any{"features": items})
	}
}

func AdminTierCreate(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		var payload tierCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := enums.ParseLicensePlan(payload.LicensePlan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_plan"))
			return
		}

		tier, err := svc.CreateTier(r.Context(), catalog.CreateTierInput{
			Title:           validators.SanitizeString(payload.Title, maxTitleLength),
			Description:     payload.Description,
			Amount:          payload.Amount,
			Currency:        payload.Currency,
			ValidityInDays:  payload.ValidityInDays,
			ExternalPriceID: payload.ExternalPriceID,
			LicensePlan:     plan,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, tierResponseFromModel(tier))
	}
}

func AdminTierUpdate(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload tierPatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Title != nil {
			title := validators.SanitizeString(*payload.Title, maxTitleLength)
			payload.Title = &title
		}

		tier, err := svc.UpdateTier(r.Context(), tierID, catalog.UpdateTierInput{
			Title:           payload.Title,
			Description:     payload.Description,
			Amount:          payload.Amount,
			ValidityInDays:  payload.ValidityInDays,
			ExternalPriceID: payload.ExternalPriceID,
			IsActive:        payload.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tierResponseFromModel(tier))
	}
}

func AdminFeatureCreate(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		var payload featureCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		feature, err := svc.CreateFeature(r.Context(), catalog.CreateFeatureInput{
			Code:        payload.Code,
			Title:       validators.SanitizeString(payload.Title, maxTitleLength),
			Description: payload.Description,
			IsCountable: payload.IsCountable,
			ActiveFrom:  payload.ActiveFrom,
			ActiveUntil: payload.ActiveUntil,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, featureResponseFromModel(feature))
	}
}

// AdminTierFeatureMap links a feature to a tier. Mapping twice is a no-op.
func AdminTierFeatureMap(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return tierFeatureHandler(svc, logg, func(ctx context.Context, tierID, featureID uuid.UUID) error {
		return svc.MapFeature(ctx, tierID, featureID)
	})
}

func AdminTierFeatureUnmap(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return tierFeatureHandler(svc, logg, func(ctx context.Context, tierID, featureID uuid.UUID) error {
		return svc.UnmapFeature(ctx, tierID, featureID)
	})
}

func tierFeatureHandler(svc CatalogService, logg *logger.Logger, apply func(ctx context.Context, tierID, featureID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !catalogAvailable(w, r, svc, logg) {
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		featureID, err := validators.ParseUUIDParam(r, "featureId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := apply(r.Context(), tierID, featureID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func catalogAvailable(w http.ResponseWriter, r *http.Request, svc CatalogService, logg *logger.Logger) bool {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
		return false
	}
	return true
}
