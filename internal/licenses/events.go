package licenses

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	"github.com/campusdesk/campusdesk-backend/pkg/outbox"
	"github.com/campusdesk/campusdesk-backend/pkg/outbox/payloads"
)

func licenseEvent(eventType enums.OutboxEventType, record *models.UserLicenseDetail, data interface{}) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateUserLicense,
		AggregateID:   record.ID,
		Actor:         &outbox.ActorRef{UserID: record.UserID},
		Data:          data,
	}
}

func (s *service) emitTrialGranted(ctx context.Context, tx *gorm.DB, record *models.UserLicenseDetail) error {
	return s.outbox.Emit(ctx, tx, licenseEvent(enums.EventLicenseTrialGranted, record, payloads.LicenseTrialGrantedEvent{
		LicenseID:  record.ID,
		UserID:     record.UserID,
		ExpiryDate: record.ExpiryDate,
	}))
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, record *models.UserLicenseDetail, from enums.LicenseStatus, reason string) error {
	return s.outbox.Emit(ctx, tx, licenseEvent(eventType, record, payloads.LicenseStatusChangedEvent{
		LicenseID:  record.ID,
		UserID:     record.UserID,
		From:       from,
		To:         record.Status,
		ExpiryDate: record.ExpiryDate,
		Reason:     reason,
	}))
}

func (s *service) emitUpgraded(ctx context.Context, tx *gorm.DB, record *models.UserLicenseDetail, previous *models.UserLicenseDetail, fromTier, toTier uuid.UUID, proration Proration) error {
	return s.outbox.Emit(ctx, tx, licenseEvent(enums.EventLicenseUpgraded, record, payloads.LicenseUpgradedEvent{
		LicenseID:         record.ID,
		UserID:            record.UserID,
		PreviousLicenseID: previous.ID,
		FromTierID:        fromTier,
		ToTierID:          toTier,
		ExtraDays:         proration.ExtraDays,
		ValidityInDays:    proration.ValidityInDays,
		Credit:            proration.Credit,
		ExpiryDate:        record.ExpiryDate,
	}))
}

func (s *service) emitSubscriptionSynced(ctx context.Context, tx *gorm.DB, record *models.UserLicenseDetail, subscriptionID, invoiceID string, created bool) error {
	return s.outbox.Emit(ctx, tx, licenseEvent(enums.EventLicenseSubscriptionSync, record, payloads.LicenseSubscriptionSyncedEvent{
		LicenseID:      record.ID,
		UserID:         record.UserID,
		SubscriptionID: subscriptionID,
		Status:         record.Status,
		InvoiceID:      invoiceID,
		Created:        created,
	}))
}

func (s *service) emitTierReconciled(ctx context.Context, tx *gorm.DB, record *models.UserLicenseDetail, from *uuid.UUID, priceID string) error {
	return s.outbox.Emit(ctx, tx, licenseEvent(enums.EventLicenseTierChanged, record, payloads.LicenseTierReconciledEvent{
		LicenseID:  record.ID,
		UserID:     record.UserID,
		FromTierID: from,
		ToTierID:   *record.LicenseTierID,
		PriceID:    priceID,
	}))
}
