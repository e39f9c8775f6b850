package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/api/responses"
	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/internal/permissions"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

type FeatureGate interface {
	CheckFeatureAccess(ctx context.Context, userID uuid.UUID, featureCode string) (*permissions.Decision, error)
}

type entitlementResponse struct {
	FeatureCode string         `json:"feature_code"`
	Allowed     bool           `json:"allowed"`
	State       licenses.State `json:"state"`
	TierID      *uuid.UUID     `json:"tier_id,omitempty"`
	Message     string         `json:"message"`
}

// EntitlementCheck answers whether the caller may use a feature. Denials are
// reported in the body with 200 so clients can render the reason.
func EntitlementCheck(gate FeatureGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "permission gate unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "featureCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "feature code is required"))
			return
		}

		decision, err := gate.CheckFeatureAccess(r.Context(), userID, code)
		if err != nil && !isDenial(err) {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if decision == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement decision missing"))
			return
		}

		responses.WriteSuccess(w, entitlementResponse{
			FeatureCode: code,
			Allowed:     decision.Allowed,
			State:       decision.State,
			TierID:      decision.TierID,
			Message:     decision.Message,
		})
	}
}

func isDenial(err error) bool {
	return errors.Is(err, pkgerrors.ErrNoValidLicense) || errors.Is(err, pkgerrors.ErrFeatureNotEntitled)
}
