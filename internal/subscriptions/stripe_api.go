package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// stripeAPI is the subset of the Stripe client the gateway calls. Tests swap in
// a fake so no request leaves the process.
type stripeAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
	RetrieveSubscription(ctx context.Context, id string, params *stripe.SubscriptionRetrieveParams) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
	ListSubscriptions(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error)
	ListCustomers(ctx context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error)
	PreviewInvoice(ctx context.Context, params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error)
}

type sdkAPI struct {
	client *stripe.Client
}

func (a *sdkAPI) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return a.client.V1CheckoutSessions.Create(ctx, params)
}

func (a *sdkAPI) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error) {
	return a.client.V1BillingPortalSessions.Create(ctx, params)
}

func (a *sdkAPI) RetrieveSubscription(ctx context.Context, id string, params *stripe.SubscriptionRetrieveParams) (*stripe.Subscription, error) {
	return a.client.V1Subscriptions.Retrieve(ctx, id, params)
}

func (a *sdkAPI) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	return a.client.V1Subscriptions.Update(ctx, id, params)
}

func (a *sdkAPI) ListSubscriptions(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	var out []*stripe.Subscription
	for sub, err := range a.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (a *sdkAPI) ListCustomers(ctx context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	var out []*stripe.Customer
	for customer, err := range a.client.V1Customers.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		out = append(out, customer)
	}
	return out, nil
}

func (a *sdkAPI) PreviewInvoice(ctx context.Context, params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error) {
	return a.client.V1Invoices.CreatePreview(ctx, params)
}
