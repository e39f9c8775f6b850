package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusdesk/campusdesk-backend/api/controllers"
	billingcontrollers "github.com/campusdesk/campusdesk-backend/api/controllers/billing"
	webhookcontrollers "github.com/campusdesk/campusdesk-backend/api/controllers/webhooks"
	"github.com/campusdesk/campusdesk-backend/api/middleware"
	"github.com/campusdesk/campusdesk-backend/pkg/config"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
	"github.com/campusdesk/campusdesk-backend/pkg/metrics"
	pkgredis "github.com/campusdesk/campusdesk-backend/pkg/redis"
)

// CacheStore is the redis surface the HTTP layer relies on.
type CacheStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Params carries everything NewRouter mounts. Nil services answer 500 from
// their handlers instead of panicking.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	HTTPMetrics *metrics.HTTPMetrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	DBPinger    Pinger
	RedisPinger Pinger
	Cache       CacheStore

	Licenses     controllers.LicenseService
	Catalog      controllers.CatalogService
	Gate         controllers.FeatureGate
	Billing      billingcontrollers.Service
	Webhooks     webhookcontrollers.StripeWebhookService
	WebhookCheck webhookcontrollers.WebhookVerifier
	WebhookGuard webhookcontrollers.EventGuard
	// WebhookSecret overrides the gateway's configured signing secret.
	WebhookSecret string
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.APIIPLimit, cfg.RateLimit.APIUserLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DBPinger, p.RedisPinger))
	})
	if p.MetricsHandler != nil {
		r.Handle("/metrics", p.MetricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(rateLimit(webhookPolicy, p.Cache, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.Webhooks, p.WebhookCheck, p.WebhookSecret, p.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(rateLimit(apiPolicy, p.Cache, logg))
		r.Use(idempotency(p.Cache, logg))

		r.Route("/licenses", func(r chi.Router) {
			r.Get("/current", controllers.LicenseCurrent(p.Licenses, logg))
			r.Get("/history", controllers.LicenseHistory(p.Licenses, logg))
			r.Post("/trial", controllers.LicenseGrantTrial(p.Licenses, logg))
			r.Post("/upgrade", controllers.LicenseUpgrade(p.Licenses, logg))
			r.Get("/upgrade/preview", controllers.LicenseUpgradePreview(p.Licenses, logg))
		})

		r.Get("/entitlements/{featureCode}", controllers.EntitlementCheck(p.Gate, logg))

		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", controllers.CatalogTiers(p.Catalog, logg))
			r.Get("/{tierId}", controllers.CatalogTier(p.Catalog, logg))
			r.Get("/{tierId}/features", controllers.CatalogTierFeatures(p.Catalog, logg))
		})

		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout", billingcontrollers.Checkout(p.Billing, logg))
			r.Post("/portal", billingcontrollers.Portal(p.Billing, logg))
			r.Get("/invoices", billingcontrollers.Invoices(p.Billing, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAppAdmin), logg))
		r.Use(rateLimit(apiPolicy, p.Cache, logg))

		r.Route("/tiers", func(r chi.Router) {
			r.Post("/", controllers.AdminTierCreate(p.Catalog, logg))
			r.Patch("/{tierId}", controllers.AdminTierUpdate(p.Catalog, logg))
			r.Put("/{tierId}/features/{featureId}", controllers.AdminTierFeatureMap(p.Catalog, logg))
			r.Delete("/{tierId}/features/{featureId}", controllers.AdminTierFeatureUnmap(p.Catalog, logg))
		})
		r.Post("/features", controllers.AdminFeatureCreate(p.Catalog, logg))
		r.Delete("/licenses/{licenseId}", controllers.AdminLicenseDelete(p.Licenses, logg))
	})

	return r
}

// A nil cache disables rate limiting and idempotency.
func rateLimit(policy middleware.RateLimitPolicy, store CacheStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return passthrough
	}
	return middleware.RateLimit(policy, store, logg)
}

func idempotency(store CacheStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return passthrough
	}
	return middleware.Idempotency(store, logg)
}

func passthrough(next http.Handler) http.Handler { return next }
