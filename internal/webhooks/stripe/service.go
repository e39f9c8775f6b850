package stripewebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

type subscriptionIngester interface {
	IngestGatewaySubscriptionEvent(ctx context.Context, event licenses.GatewaySubscriptionEvent) (*models.UserLicenseDetail, error)
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*subscriptions.Subscription, error)
}

type ServiceParams struct {
	Licenses subscriptionIngester
	Gateway  subscriptionFetcher
	Logger   *logger.Logger
}

// Service routes verified gateway events into the licensing engine.
type Service struct {
	licenses subscriptionIngester
	gateway  subscriptionFetcher
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Licenses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "license service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway required")
	}
	return &Service{
		licenses: params.Licenses,
		gateway:  params.Gateway,
		logg:     params.Logger,
	}, nil
}

// HandleEvent applies one verified event. Event types the service does not
// react to are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *subscriptions.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		})
	}

	switch event.Type {
	case subscriptions.EventSubscriptionCreated,
		subscriptions.EventSubscriptionUpdated,
		subscriptions.EventSubscriptionDeleted:
		return s.handleSubscription(ctx, event)
	case subscriptions.EventInvoicePaid, subscriptions.EventInvoicePaymentFail:
		return s.handleInvoice(ctx, event)
	case subscriptions.EventCheckoutCompleted:
		return s.handleCheckout(ctx, event)
	default:
		s.debug(ctx, "ignoring unhandled gateway event")
		return nil
	}
}

func (s *Service) handleSubscription(ctx context.Context, event *subscriptions.Event) error {
	if event.Subscription == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription payload missing")
	}
	return s.ingest(ctx, licenses.GatewaySubscriptionEvent{Subscription: event.Subscription})
}

func (s *Service) handleInvoice(ctx context.Context, event *subscriptions.Event) error {
	inv := event.Invoice
	if inv == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice payload missing")
	}
	if strings.TrimSpace(inv.SubscriptionID) == "" {
		s.debug(ctx, "invoice not tied to a subscription")
		return nil
	}
	sub, err := s.gateway.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	return s.ingest(ctx, licenses.GatewaySubscriptionEvent{Subscription: sub, Invoice: inv})
}

func (s *Service) handleCheckout(ctx context.Context, event *subscriptions.Event) error {
	completion := event.Checkout
	if completion == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout payload missing")
	}
	if strings.TrimSpace(completion.SubscriptionID) == "" {
		s.debug(ctx, "checkout without subscription")
		return nil
	}
	sub, err := s.gateway.GetSubscription(ctx, completion.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.CustomerEmail == "" {
		sub.CustomerEmail = completion.CustomerEmail
	}
	if sub.CustomerID == "" {
		sub.CustomerID = completion.CustomerID
	}

	ingest := licenses.GatewaySubscriptionEvent{Subscription: sub}
	if ref := strings.TrimSpace(completion.ClientReferenceID); ref != "" {
		if userID, err := uuid.Parse(ref); err == nil {
			ingest.UserID = userID
		} else if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "client_reference_id", ref), "checkout reference is not a user id")
		}
	}
	return s.ingest(ctx, ingest)
}

func (s *Service) ingest(ctx context.Context, event licenses.GatewaySubscriptionEvent) error {
	record, err := s.licenses.IngestGatewaySubscriptionEvent(ctx, event)
	if err != nil {
		return err
	}
	if s.logg != nil && record != nil {
		s.logg.Info(s.logg.WithLicenseID(s.logg.WithUserID(ctx, record.UserID.String()), record.ID.String()), "gateway subscription ingested")
	}
	return nil
}

func (s *Service) debug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}
