package licenses

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
)

type priceUpdate struct {
	subscriptionID string
	priceID        string
}

type fakeGateway struct {
	updates   []priceUpdate
	updateErr error

	proration   decimal.Decimal
	prorationOf priceUpdate

	active    *subscriptions.Subscription
	findErr   error
	findCalls int
}

func (f *fakeGateway) CreateCheckoutSession(context.Context, subscriptions.CheckoutRequest) (*subscriptions.CheckoutSession, error) {
	return &subscriptions.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func (f *fakeGateway) GetCustomerPortalURL(context.Context, string, string) (string, error) {
	return "https://portal.test", nil
}

func (f *fakeGateway) VerifyAndParseWebhook([]byte, string, string) (*subscriptions.Event, error) {
	return nil, errors.New("not used")
}

func (f *fakeGateway) GetUpcomingProration(_ context.Context, subscriptionID, newPriceID string) (decimal.Decimal, error) {
	f.prorationOf = priceUpdate{subscriptionID: subscriptionID, priceID: newPriceID}
	return f.proration, nil
}

func (f *fakeGateway) UpdateSubscriptionPrice(_ context.Context, subscriptionID, newPriceID string) (*subscriptions.Subscription, error) {
	f.updates = append(f.updates, priceUpdate{subscriptionID: subscriptionID, priceID: newPriceID})
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &subscriptions.Subscription{ID: subscriptionID, PriceID: newPriceID, ProductID: "prod_upgraded"}, nil
}

func (f *fakeGateway) GetSubscription(_ context.Context, subscriptionID string) (*subscriptions.Subscription, error) {
	if f.active != nil && f.active.ID == subscriptionID {
		return f.active, nil
	}
	return nil, pkgerrors.NotFound("subscription not found")
}

func (f *fakeGateway) FindActiveSubscription(context.Context, string, string) (*subscriptions.Subscription, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.active == nil {
		return nil, pkgerrors.NotFound("no active subscription")
	}
	return f.active, nil
}
