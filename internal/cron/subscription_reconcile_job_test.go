package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

func TestSubscriptionReconcileIngestsGatewayState(t *testing.T) {
	userID := uuid.New()
	lister := &fakeAwaitingLister{rows: []models.UserLicenseDetail{
		{ID: uuid.New(), UserID: userID, ExternalSubscriptionID: ptrString("sub_1"), Status: enums.LicenseStatusIncomplete},
		{ID: uuid.New(), UserID: uuid.New()},
	}}
	fetcher := &fakeSubscriptionFetcher{}
	ingester := &fakeIngester{}
	job := newReconcileJob(t, lister, fetcher, ingester)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.requested) != 1 || fetcher.requested[0] != "sub_1" {
		t.Fatalf("expected one fetch for sub_1, got %v", fetcher.requested)
	}
	if len(ingester.events) != 1 {
		t.Fatalf("expected one ingest, got %d", len(ingester.events))
	}
	if ingester.events[0].UserID != userID || ingester.events[0].Subscription.ID != "sub_1" {
		t.Fatalf("unexpected ingest %+v", ingester.events[0])
	}
	if lister.limit != defaultReconcileLimit {
		t.Fatalf("expected default limit, got %d", lister.limit)
	}
}

func TestSubscriptionReconcileAggregatesFailures(t *testing.T) {
	lister := &fakeAwaitingLister{rows: []models.UserLicenseDetail{
		{ID: uuid.New(), UserID: uuid.New(), ExternalSubscriptionID: ptrString("sub_fail")},
		{ID: uuid.New(), UserID: uuid.New(), ExternalSubscriptionID: ptrString("sub_ok")},
	}}
	fetcher := &fakeSubscriptionFetcher{failFor: map[string]error{"sub_fail": errors.New("gateway down")}}
	ingester := &fakeIngester{}
	job := newReconcileJob(t, lister, fetcher, ingester)

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing subscription")
	}
	if len(ingester.events) != 1 || ingester.events[0].Subscription.ID != "sub_ok" {
		t.Fatalf("expected the healthy subscription to be ingested")
	}
}

func TestSubscriptionReconcilePropagatesIngestError(t *testing.T) {
	lister := &fakeAwaitingLister{rows: []models.UserLicenseDetail{
		{ID: uuid.New(), UserID: uuid.New(), ExternalSubscriptionID: ptrString("sub_1")},
	}}
	job := newReconcileJob(t, lister, &fakeSubscriptionFetcher{}, &fakeIngester{err: errors.New("db down")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected ingest error")
	}
}

func newReconcileJob(t *testing.T, lister *fakeAwaitingLister, fetcher *fakeSubscriptionFetcher, ingester *fakeIngester) *subscriptionReconcileJob {
	t.Helper()
	jobIface, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Store:    lister,
		Gateway:  fetcher,
		Licenses: ingester,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionReconcileJob: %v", err)
	}
	return jobIface.(*subscriptionReconcileJob)
}

func ptrString(v string) *string { return &v }

type fakeAwaitingLister struct {
	rows  []models.UserLicenseDetail
	limit int
}

func (f *fakeAwaitingLister) ListAwaitingPayment(ctx context.Context, limit int) ([]models.UserLicenseDetail, error) {
	f.limit = limit
	return f.rows, nil
}

type fakeSubscriptionFetcher struct {
	failFor   map[string]error
	requested []string
}

func (f *fakeSubscriptionFetcher) GetSubscription(ctx context.Context, subscriptionID string) (*subscriptions.Subscription, error) {
	f.requested = append(f.requested, subscriptionID)
	if err := f.failFor[subscriptionID]; err != nil {
		return nil, err
	}
	return &subscriptions.Subscription{ID: subscriptionID, Status: enums.SubscriptionStatusActive}, nil
}

type fakeIngester struct {
	events []licenses.GatewaySubscriptionEvent
	err    error
}

func (f *fakeIngester) IngestGatewaySubscriptionEvent(ctx context.Context, event licenses.GatewaySubscriptionEvent) (*models.UserLicenseDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.events = append(f.events, event)
	return &models.UserLicenseDetail{ID: uuid.New(), UserID: event.UserID, Status: enums.LicenseStatusActive}, nil
}
