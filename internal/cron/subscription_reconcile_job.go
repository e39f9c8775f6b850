package cron

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

const defaultReconcileLimit = 250

// SubscriptionReconcileJobParams configures the subscription sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger   *logger.Logger
	Store    awaitingPaymentLister
	Gateway  subscriptionFetcher
	Licenses subscriptionIngester
	Limit    int
}

type awaitingPaymentLister interface {
	ListAwaitingPayment(ctx context.Context, limit int) ([]models.UserLicenseDetail, error)
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*subscriptions.Subscription, error)
}

type subscriptionIngester interface {
	IngestGatewaySubscriptionEvent(ctx context.Context, event licenses.GatewaySubscriptionEvent) (*models.UserLicenseDetail, error)
}

// NewSubscriptionReconcileJob builds a job that refreshes records stuck in
// incomplete or past_due from the gateway, covering missed webhooks.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("license store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		store:    params.Store,
		gateway:  params.Gateway,
		licenses: params.Licenses,
		limit:    limit,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	store    awaitingPaymentLister
	gateway  subscriptionFetcher
	licenses subscriptionIngester
	limit    int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	candidates, err := j.store.ListAwaitingPayment(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}
	var errs error
	synced := 0
	for i := range candidates {
		if err := j.reconcile(ctx, &candidates[i]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcile(ctx context.Context, record *models.UserLicenseDetail) error {
	if record.ExternalSubscriptionID == nil || strings.TrimSpace(*record.ExternalSubscriptionID) == "" {
		return nil
	}
	subID := *record.ExternalSubscriptionID
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"user_id":         record.UserID.String(),
		"license_id":      record.ID.String(),
		"subscription_id": subID,
	})
	sub, err := j.gateway.GetSubscription(logCtx, subID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	updated, err := j.licenses.IngestGatewaySubscriptionEvent(logCtx, licenses.GatewaySubscriptionEvent{
		Subscription: sub,
		UserID:       record.UserID,
	})
	if err != nil {
		return fmt.Errorf("ingest subscription %s: %w", subID, err)
	}
	j.logg.Info(j.logg.WithField(logCtx, "status", updated.Status.String()), "subscription reconciled")
	return nil
}
