package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
	"github.com/campusdesk/campusdesk-backend/pkg/metrics"
	pkgstripe "github.com/campusdesk/campusdesk-backend/pkg/stripe"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 200 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// StripeGatewayParams groups dependencies for the Stripe-backed gateway.
type StripeGatewayParams struct {
	Client      *pkgstripe.Client
	Logger      *logger.Logger
	Metrics     *metrics.GatewayMetrics
	MaxRetries  uint64
	BaseBackoff time.Duration
}

// StripeGateway implements Gateway over the Stripe API.
type StripeGateway struct {
	api         stripeAPI
	secret      string
	logg        *logger.Logger
	metrics     *metrics.GatewayMetrics
	maxRetries  uint64
	baseBackoff time.Duration
}

// NewStripeGateway builds the gateway from an initialized Stripe client.
func NewStripeGateway(params StripeGatewayParams) (*StripeGateway, error) {
	if params.Client == nil || params.Client.API() == nil {
		return nil, errors.New("stripe client required")
	}
	return newStripeGateway(&sdkAPI{client: params.Client.API()}, params.Client.SigningSecret(), params), nil
}

func newStripeGateway(api stripeAPI, secret string, params StripeGatewayParams) *StripeGateway {
	maxRetries := params.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	base := params.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	return &StripeGateway{
		api:         api,
		secret:      secret,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxRetries:  maxRetries,
		baseBackoff: base,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price id is required")
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success and cancel urls are required")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.UserID != uuid.Nil {
		params.ClientReferenceID = stripe.String(req.UserID.String())
		params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: req.UserID.String()},
		}
	}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		params.Customer = stripe.String(customerID)
	} else if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.SetIdempotencyKey(idempotencyKey(req.IdempotencyKey))

	session, err := withRetry(ctx, g, "create_checkout_session", func(ctx context.Context) (*stripe.CheckoutSession, error) {
		return g.api.CreateCheckoutSession(ctx, params)
	})
	if err != nil {
		return nil, pkgerrors.Gateway(err, "create checkout session")
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) GetCustomerPortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if strings.TrimSpace(returnURL) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "return url is required")
	}
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	session, err := withRetry(ctx, g, "create_portal_session", func(ctx context.Context) (*stripe.BillingPortalSession, error) {
		return g.api.CreatePortalSession(ctx, params)
	})
	if err != nil {
		return "", pkgerrors.Gateway(err, "create customer portal session")
	}
	return session.URL, nil
}

// VerifyAndParseWebhook checks the Stripe-Signature header against secret
// (or the configured signing secret when empty) and decodes the event object.
func (g *StripeGateway) VerifyAndParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		secret = g.secret
	}
	if strings.TrimSpace(signature) == "" || secret == "" {
		return nil, signatureError(errors.New("signature or secret missing"))
	}
	raw, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, signatureError(err)
	}
	return parseEvent(&raw)
}

func parseEvent(raw *stripe.Event) (*Event, error) {
	event := &Event{
		ID:      raw.ID,
		Type:    EventType(raw.Type),
		Created: toTime(raw.Created),
	}
	if raw.Data == nil {
		return event, nil
	}

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		event.Subscription = subscriptionFromStripe(&sub)
	case EventInvoicePaid, EventInvoicePaymentFail:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		subscriptionID := raw.GetObjectValue("parent", "subscription_details", "subscription")
		if subscriptionID == "" {
			subscriptionID = raw.GetObjectValue("subscription")
		}
		event.Invoice = invoiceFromStripe(&inv, subscriptionID)
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &session); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout event")
		}
		event.Checkout = checkoutFromStripe(&session)
	}
	return event, nil
}

func (g *StripeGateway) GetUpcomingProration(ctx context.Context, subscriptionID, newPriceID string) (decimal.Decimal, error) {
	sub, err := g.retrieve(ctx, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	if sub.ItemID == "" {
		return decimal.Zero, pkgerrors.Gateway(nil, "subscription has no items")
	}

	params := &stripe.InvoiceCreatePreviewParams{
		Subscription: stripe.String(sub.ID),
		SubscriptionDetails: &stripe.InvoiceCreatePreviewSubscriptionDetailsParams{
			Items: []*stripe.InvoiceCreatePreviewSubscriptionDetailsItemParams{
				{ID: stripe.String(sub.ItemID), Price: stripe.String(newPriceID)},
			},
			ProrationBehavior: stripe.String("create_prorations"),
		},
	}
	if sub.CustomerID != "" {
		params.Customer = stripe.String(sub.CustomerID)
	}
	preview, err := withRetry(ctx, g, "preview_invoice", func(ctx context.Context) (*stripe.Invoice, error) {
		return g.api.PreviewInvoice(ctx, params)
	})
	if err != nil {
		return decimal.Zero, pkgerrors.Gateway(err, "preview proration")
	}
	return fromCents(preview.AmountDue), nil
}

// UpdateSubscriptionPrice swaps the subscription's single item to newPriceID.
// Gateway-side proration is disabled: unused time is credited as extra
// validity days on the license instead.
func (g *StripeGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*Subscription, error) {
	if strings.TrimSpace(newPriceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price id is required")
	}
	current, err := g.retrieve(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.ItemID == "" {
		return nil, pkgerrors.Gateway(nil, "subscription has no items")
	}

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{ID: stripe.String(current.ItemID), Price: stripe.String(newPriceID)},
		},
		ProrationBehavior: stripe.String("none"),
	}
	params.AddExpand("customer")
	params.AddExpand("items.data.price.product")
	params.SetIdempotencyKey(uuid.NewString())

	updated, err := withRetry(ctx, g, "update_subscription", func(ctx context.Context) (*stripe.Subscription, error) {
		return g.api.UpdateSubscription(ctx, current.ID, params)
	})
	if err != nil {
		return nil, pkgerrors.Gateway(err, "update subscription price")
	}
	return subscriptionFromStripe(updated), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return g.retrieve(ctx, subscriptionID)
}

func (g *StripeGateway) FindActiveSubscription(ctx context.Context, customerID, email string) (*Subscription, error) {
	customerIDs := []string{}
	if id := strings.TrimSpace(customerID); id != "" {
		customerIDs = append(customerIDs, id)
	} else if addr := strings.TrimSpace(email); addr != "" {
		params := &stripe.CustomerListParams{Email: stripe.String(addr)}
		params.Limit = stripe.Int64(10)
		customers, err := withRetry(ctx, g, "list_customers", func(ctx context.Context) ([]*stripe.Customer, error) {
			return g.api.ListCustomers(ctx, params)
		})
		if err != nil {
			return nil, pkgerrors.Gateway(err, "list customers")
		}
		for _, c := range customers {
			if c != nil && c.ID != "" {
				customerIDs = append(customerIDs, c.ID)
			}
		}
	}
	if len(customerIDs) == 0 {
		return nil, pkgerrors.NotFound("no billing identity")
	}

	var fallback *Subscription
	for _, id := range customerIDs {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(id),
			Status:   stripe.String("all"),
		}
		params.Limit = stripe.Int64(10)
		params.AddExpand("data.customer")
		subs, err := withRetry(ctx, g, "list_subscriptions", func(ctx context.Context) ([]*stripe.Subscription, error) {
			return g.api.ListSubscriptions(ctx, params)
		})
		if err != nil {
			return nil, pkgerrors.Gateway(err, "list subscriptions")
		}
		for _, raw := range subs {
			sub := subscriptionFromStripe(raw)
			if sub == nil || !sub.Status.LicenseStatus().IsCurrent() {
				continue
			}
			if sub.Status.LicenseStatus() == enums.LicenseStatusActive {
				return sub, nil
			}
			if fallback == nil {
				fallback = sub
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, pkgerrors.NotFound("no active subscription")
}

func (g *StripeGateway) retrieve(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("customer")
	params.AddExpand("items.data.price.product")
	sub, err := withRetry(ctx, g, "retrieve_subscription", func(ctx context.Context) (*stripe.Subscription, error) {
		return g.api.RetrieveSubscription(ctx, subscriptionID, params)
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, pkgerrors.NotFound("subscription not found")
		}
		return nil, pkgerrors.Gateway(err, "retrieve subscription")
	}
	return subscriptionFromStripe(sub), nil
}

// withRetry runs fn with capped exponential backoff, retrying only transient
// failures. A fresh backoff is built per call since go-retry backoffs are stateful.
func withRetry[T any](ctx context.Context, g *StripeGateway, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	backoff := retry.WithMaxRetries(g.maxRetries, retry.WithCappedDuration(maxBackoff, retry.NewExponential(g.baseBackoff)))
	attempt := 0
	value, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		attempt++
		if attempt > 1 {
			g.metrics.IncRetry(op)
		}
		v, err := fn(ctx)
		if err != nil && isTransient(err) {
			if g.logg != nil {
				g.logg.Warn(ctx, fmt.Sprintf("stripe %s attempt %d failed: %v", op, attempt, err))
			}
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	g.metrics.Observe(op, time.Since(start), err)
	return value, err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func signatureError(cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, fmt.Errorf("%w: %w", pkgerrors.ErrSignatureInvalid, cause), "invalid webhook signature")
}

func idempotencyKey(requested string) string {
	if key := strings.TrimSpace(requested); key != "" {
		return key
	}
	return uuid.NewString()
}
