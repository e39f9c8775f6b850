package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

type fakeStripeAPI struct {
	checkoutParams *stripe.CheckoutSessionCreateParams
	checkoutResp   *stripe.CheckoutSession

	portalResp *stripe.BillingPortalSession

	subscriptions map[string]*stripe.Subscription
	retrieveErrs  []error
	retrieveCalls int

	updateParams *stripe.SubscriptionUpdateParams
	updateErr    error

	customers     []*stripe.Customer
	listed        map[string][]*stripe.Subscription
	previewParams *stripe.InvoiceCreatePreviewParams
	previewResp   *stripe.Invoice
}

func (f *fakeStripeAPI) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	f.checkoutParams = params
	return f.checkoutResp, nil
}

func (f *fakeStripeAPI) CreatePortalSession(_ context.Context, _ *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error) {
	return f.portalResp, nil
}

func (f *fakeStripeAPI) RetrieveSubscription(_ context.Context, id string, _ *stripe.SubscriptionRetrieveParams) (*stripe.Subscription, error) {
	f.retrieveCalls++
	if len(f.retrieveErrs) > 0 {
		err := f.retrieveErrs[0]
		f.retrieveErrs = f.retrieveErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "no such subscription"}
	}
	return sub, nil
}

func (f *fakeStripeAPI) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	f.updateParams = params
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	sub := f.subscriptions[id]
	updated := *sub
	updated.Items = &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
		ID:                 *params.Items[0].ID,
		CurrentPeriodStart: sub.Items.Data[0].CurrentPeriodStart,
		CurrentPeriodEnd:   sub.Items.Data[0].CurrentPeriodEnd,
		Price:              &stripe.Price{ID: *params.Items[0].Price},
	}}}
	return &updated, nil
}

func (f *fakeStripeAPI) ListSubscriptions(_ context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	return f.listed[*params.Customer], nil
}

func (f *fakeStripeAPI) ListCustomers(_ context.Context, _ *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	return f.customers, nil
}

func (f *fakeStripeAPI) PreviewInvoice(_ context.Context, params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error) {
	f.previewParams = params
	return f.previewResp, nil
}
