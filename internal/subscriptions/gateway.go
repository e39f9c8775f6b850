package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

// MetadataUserID is the subscription metadata key carrying the owning user id.
const MetadataUserID = "user_id"

// Gateway is the payment provider boundary used by the licensing engine and
// surrounding billing flows.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCustomerPortalURL(ctx context.Context, customerID, returnURL string) (string, error)
	VerifyAndParseWebhook(payload []byte, signature, secret string) (*Event, error)
	GetUpcomingProration(ctx context.Context, subscriptionID, newPriceID string) (decimal.Decimal, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// FindActiveSubscription returns an error matching pkgerrors.ErrNotFound
	// when the billing identity holds no live subscription.
	FindActiveSubscription(ctx context.Context, customerID, email string) (*Subscription, error)
}

// CheckoutRequest describes a hosted checkout for one tier price.
type CheckoutRequest struct {
	PriceID        string
	CustomerEmail  string
	CustomerID     string
	UserID         uuid.UUID
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the hosted checkout created by the gateway.
type CheckoutSession struct {
	ID  string
	URL string
}

// Subscription is a gateway-neutral view of a recurring subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	CustomerEmail      string
	ItemID             string
	PriceID            string
	ProductID          string
	ProductName        string
	PlanName           string
	Currency           string
	Status             enums.SubscriptionStatus
	UnitAmount         decimal.Decimal
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelAt           *time.Time
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// UserID returns the user id stamped into subscription metadata at checkout.
func (s Subscription) UserID() (uuid.UUID, bool) {
	raw := strings.TrimSpace(s.Metadata[MetadataUserID])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// IsCancelled reports whether the subscription will not renew.
func (s Subscription) IsCancelled() bool {
	return s.CancelAtPeriodEnd || s.CancelAt != nil || s.CanceledAt != nil
}

// ValidityInDays returns the length of the current billing period in whole days.
func (s Subscription) ValidityInDays() int {
	if s.CurrentPeriodStart.IsZero() || s.CurrentPeriodEnd.IsZero() {
		return 0
	}
	days := int(s.CurrentPeriodEnd.Sub(s.CurrentPeriodStart).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Invoice is a gateway-neutral billing document tied to a subscription.
type Invoice struct {
	ID                 string
	SubscriptionID     string
	CustomerID         string
	CustomerEmail      string
	Currency           string
	AmountPaid         decimal.Decimal
	AmountDue          decimal.Decimal
	AmountRemaining    decimal.Decimal
	DiscountPercentage decimal.Decimal
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
}

// CheckoutCompletion summarizes a finished hosted checkout.
type CheckoutCompletion struct {
	SessionID         string
	SubscriptionID    string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
}

// EventType names the gateway events the service reacts to.
type EventType string

const (
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventInvoicePaid         EventType = "invoice.paid"
	EventInvoicePaymentFail  EventType = "invoice.payment_failed"
	EventCheckoutCompleted   EventType = "checkout.session.completed"
)

// Event is a verified webhook delivery. Exactly one of Subscription, Invoice
// or Checkout is set for the handled types; all are nil otherwise.
type Event struct {
	ID           string
	Type         EventType
	Created      time.Time
	Subscription *Subscription
	Invoice      *Invoice
	Checkout     *CheckoutCompletion
}
