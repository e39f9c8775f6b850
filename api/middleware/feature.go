package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/api/responses"
	"github.com/campusdesk/campusdesk-backend/internal/permissions"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

type featureChecker interface {
	CheckFeatureAccess(ctx context.Context, userID uuid.UUID, featureCode string) (*permissions.Decision, error)
}

// RequireFeature lets the request through only when the caller's license
// tier includes featureCode. Must run behind Auth.
func RequireFeature(gate featureChecker, featureCode string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserUUIDFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if gate == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "permission gate unavailable"))
				return
			}

			decision, err := gate.CheckFeatureAccess(r.Context(), userID, featureCode)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if decision == nil || !decision.Allowed {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeForbidden, pkgerrors.ErrFeatureNotEntitled, "feature not available"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
