package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/internal/catalog"
	"github.com/campusdesk/campusdesk-backend/internal/entitlements"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/internal/users"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
	"github.com/campusdesk/campusdesk-backend/pkg/outbox"
)

// DefaultTrialDays is the trial length used when none is configured.
const DefaultTrialDays = 15

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the license lifecycle engine.
type Service interface {
	GrantTrial(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error)
	ResolveActiveLicense(ctx context.Context, userID uuid.UUID) (*Resolution, error)
	UpgradeTier(ctx context.Context, userID, newTierID uuid.UUID) (*UpgradeResult, error)
	PreviewUpgrade(ctx context.Context, userID, newTierID uuid.UUID) (*UpgradePreview, error)
	IngestGatewaySubscriptionEvent(ctx context.Context, event GatewaySubscriptionEvent) (*models.UserLicenseDetail, error)
	LicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error)
	DeleteLicense(ctx context.Context, licenseID uuid.UUID) error
}

// GatewaySubscriptionEvent is gateway state to persist. UserID is optional and
// takes effect only when no record holds the subscription yet.
type GatewaySubscriptionEvent struct {
	Subscription *subscriptions.Subscription
	Invoice      *subscriptions.Invoice
	UserID       uuid.UUID
}

// UpgradeResult is the replacement record produced by UpgradeTier.
type UpgradeResult struct {
	License   *models.UserLicenseDetail
	Previous  *models.UserLicenseDetail
	Proration Proration
}

// UpgradePreview reports what UpgradeTier would do without changing anything.
type UpgradePreview struct {
	CurrentTier     *models.LicenseTier
	NewTier         *models.LicenseTier
	Proration       Proration
	GatewayProrated decimal.Decimal
}

// ServiceParams wires the engine's collaborators.
type ServiceParams struct {
	DB        txRunner
	Store     entitlements.Store
	Users     *users.Repository
	Catalog   catalog.Service
	Gateway   subscriptions.Gateway
	Outbox    *outbox.Service
	Logger    *logger.Logger
	TrialDays int
	Now       func() time.Time
}

type service struct {
	db        txRunner
	store     entitlements.Store
	users     *users.Repository
	catalog   catalog.Service
	gateway   subscriptions.Gateway
	outbox    *outbox.Service
	logg      *logger.Logger
	trialDays int
	now       func() time.Time
}

// NewService builds the lifecycle engine.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("entitlement store required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("subscription gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	trialDays := params.TrialDays
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		store:     params.Store,
		users:     params.Users,
		catalog:   params.Catalog,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		logg:      params.Logger,
		trialDays: trialDays,
		now:       now,
	}, nil
}

// GrantTrial creates the user's one trial record. The gateway is not involved.
func (s *service) GrantTrial(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	trialTier, err := s.catalog.GetTrialTier(ctx)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, err
		}
		trialTier = nil
	}

	now := s.now().UTC()
	var granted *models.UserLicenseDetail
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, userID); err != nil {
			return err
		}
		store := s.store.WithTx(tx)

		history, err := store.GetLicenseHistory(ctx, userID)
		if err != nil {
			return err
		}
		if err := checkTrialEligibility(history, now); err != nil {
			return err
		}

		record := &models.UserLicenseDetail{
			UserID:                 userID,
			ExternalSubscriptionID: strPtr(models.TrialSubscriptionID),
			PlanName:               string(enums.LicensePlanTrial),
			ProductName:            "Trial",
			StartDate:              now,
			ExpiryDate:             now.Add(time.Duration(s.trialDays) * day),
			ActualPaidPrice:        decimal.Zero,
			Currency:               "usd",
			Status:                 enums.LicenseStatusActive,
			ValidityInDays:         s.trialDays,
			DiscountPercentage:     decimal.Zero,
		}
		if trialTier != nil {
			tierID := trialTier.ID
			record.LicenseTierID = &tierID
			record.ProductName = trialTier.Title
			if trialTier.Currency != "" {
				record.Currency = trialTier.Currency
			}
		}

		saved, err := store.UpsertLicense(ctx, record)
		if err != nil {
			return err
		}
		granted = saved
		return s.emitTrialGranted(ctx, tx, saved)
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, granted, "trial granted")
	return granted, nil
}

func checkTrialEligibility(history []models.UserLicenseDetail, now time.Time) error {
	hadTrial := false
	for i := range history {
		rec := history[i]
		if rec.IsTrial() {
			if rec.Status == enums.LicenseStatusActive && !rec.ExpiredAt(now) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, pkgerrors.ErrDuplicateTrial, "a trial is already active")
			}
			hadTrial = true
			continue
		}
		if rec.Status.IsCurrent() && !rec.ExpiredAt(now) {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrLicenseAlreadyActive, "a paid license is already active")
		}
	}
	if hadTrial {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrTrialExhausted, "the trial period has already been used")
	}
	return nil
}

// ResolveActiveLicense applies any due lifecycle transition to the user's
// current record and returns the resulting state.
func (s *service) ResolveActiveLicense(ctx context.Context, userID uuid.UUID) (*Resolution, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	return s.resolve(ctx, userID, true)
}

func (s *service) resolve(ctx context.Context, userID uuid.UUID, allowGatewaySync bool) (*Resolution, error) {
	record, err := s.store.GetActiveLicense(ctx, userID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return s.resolveFromHistory(ctx, userID)
		}
		return nil, err
	}

	if !record.IsTrial() && !record.HasGatewaySubscription() && allowGatewaySync {
		synced, err := s.syncFromGateway(ctx, record)
		if err != nil {
			return nil, err
		}
		if synced {
			return s.resolve(ctx, userID, false)
		}
		expired, err := s.transition(ctx, record, enums.LicenseStatusExpired, enums.EventLicenseExpired,
			"no gateway subscription", func(r *models.UserLicenseDetail) bool {
				return r.Status.IsCurrent() && !r.HasGatewaySubscription() && !r.IsTrial()
			})
		if err != nil {
			return nil, err
		}
		return &Resolution{State: StateOf(expired), License: expired}, nil
	}

	now := s.now().UTC()
	if record.ExpiredAt(now) {
		expired, err := s.transition(ctx, record, enums.LicenseStatusExpired, enums.EventLicenseExpired,
			"validity ended", func(r *models.UserLicenseDetail) bool {
				return r.Status.IsCurrent() && r.ExpiredAt(now)
			})
		if err != nil {
			return nil, err
		}
		return &Resolution{State: StateOf(expired), License: expired}, nil
	}

	if record.IsCancelled && record.Status == enums.LicenseStatusActive {
		renew, err := s.transition(ctx, record, enums.LicenseStatusRenew, enums.EventLicenseRenewalPending,
			"subscription cancelled", func(r *models.UserLicenseDetail) bool {
				return r.IsCancelled && r.Status == enums.LicenseStatusActive
			})
		if err != nil {
			return nil, err
		}
		return &Resolution{State: StateOf(renew), License: renew}, nil
	}

	if record.Status == enums.LicenseStatusActive {
		record = s.reconcileTier(ctx, record)
	}
	return &Resolution{State: StateOf(record), License: record}, nil
}

func (s *service) resolveFromHistory(ctx context.Context, userID uuid.UUID) (*Resolution, error) {
	history, err := s.store.GetLicenseHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return &Resolution{State: StateNoLicense}, nil
	}
	latest := history[0]
	switch latest.Status {
	case enums.LicenseStatusExpired:
		return &Resolution{State: StateExpired, License: &latest}, nil
	case enums.LicenseStatusTrialPeriodEnded:
		return &Resolution{State: StateTrialEnded, License: &latest}, nil
	default:
		return &Resolution{State: StateNoLicense}, nil
	}
}

// transition sets status on the locked row when check still holds there.
// The re-read row is returned unchanged when a concurrent writer got there first.
func (s *service) transition(ctx context.Context, record *models.UserLicenseDetail, to enums.LicenseStatus, eventType enums.OutboxEventType, reason string, check func(*models.UserLicenseDetail) bool) (*models.UserLicenseDetail, error) {
	var result *models.UserLicenseDetail
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, record.UserID); err != nil {
			return err
		}
		store := s.store.WithTx(tx)
		fresh, err := store.GetLicenseByID(ctx, record.ID)
		if err != nil {
			return err
		}
		if !check(fresh) {
			result = fresh
			return nil
		}
		from := fresh.Status
		fresh.Status = to
		saved, err := store.UpsertLicense(ctx, fresh)
		if err != nil {
			return err
		}
		result = saved
		return s.emitStatusChanged(ctx, tx, eventType, saved, from, reason)
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, result, "license transitioned to "+result.Status.String())
	return result, nil
}

// syncFromGateway looks for a subscription paid outside the checkout flow.
// It reports whether one was found and ingested.
func (s *service) syncFromGateway(ctx context.Context, record *models.UserLicenseDetail) (bool, error) {
	email := ""
	user, err := s.users.GetByID(ctx, record.UserID)
	switch {
	case err == nil:
		email = user.Email
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return false, err
	}

	customerID := deref(record.ExternalCustomerID)
	if customerID == "" && email == "" {
		return false, nil
	}

	sub, err := s.gateway.FindActiveSubscription(ctx, customerID, email)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{
		Subscription: sub,
		UserID:       record.UserID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// reconcileTier realigns the record's tier with the catalog entry for its
// price. Failures are logged and the record is returned as loaded.
func (s *service) reconcileTier(ctx context.Context, record *models.UserLicenseDetail) *models.UserLicenseDetail {
	priceID := deref(record.ExternalPriceID)
	if priceID == "" || record.IsTrial() {
		return record
	}
	tier, err := s.catalog.GetTierByExternalPriceID(ctx, priceID)
	if err != nil {
		s.warn(ctx, record, "tier lookup by price failed: "+err.Error())
		return record
	}
	if record.LicenseTierID != nil && *record.LicenseTierID == tier.ID {
		return record
	}

	var result *models.UserLicenseDetail
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, record.UserID); err != nil {
			return err
		}
		store := s.store.WithTx(tx)
		fresh, err := store.GetLicenseByID(ctx, record.ID)
		if err != nil {
			return err
		}
		if deref(fresh.ExternalPriceID) != priceID || (fresh.LicenseTierID != nil && *fresh.LicenseTierID == tier.ID) {
			result = fresh
			return nil
		}
		from := fresh.LicenseTierID
		tierID := tier.ID
		fresh.LicenseTierID = &tierID
		saved, err := store.UpsertLicense(ctx, fresh)
		if err != nil {
			return err
		}
		result = saved
		return s.emitTierReconciled(ctx, tx, saved, from, priceID)
	})
	if err != nil {
		s.warn(ctx, record, "tier reconcile failed: "+err.Error())
		return record
	}
	return result
}

// UpgradeTier moves a paid subscriber onto a more expensive tier, converting
// the unused value of the current tier into extra days.
func (s *service) UpgradeTier(ctx context.Context, userID, newTierID uuid.UUID) (*UpgradeResult, error) {
	plan, err := s.planUpgrade(ctx, userID, newTierID)
	if err != nil {
		return nil, err
	}

	subscriptionID := deref(plan.current.ExternalSubscriptionID)
	newPriceID := deref(plan.newTier.ExternalPriceID)
	sub, err := s.gateway.UpdateSubscriptionPrice(ctx, subscriptionID, newPriceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var replacement *models.UserLicenseDetail
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, userID); err != nil {
			return err
		}
		store := s.store.WithTx(tx)
		fresh, err := store.GetLicenseByID(ctx, plan.current.ID)
		if err != nil {
			return err
		}
		if !fresh.Status.IsCurrent() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "license changed during upgrade")
		}
		if _, err := store.DeactivateAllActiveLicenses(ctx, userID); err != nil {
			return err
		}

		tierID := plan.newTier.ID
		record := &models.UserLicenseDetail{
			UserID:                 userID,
			LicenseTierID:          &tierID,
			ExternalCustomerID:     fresh.ExternalCustomerID,
			ExternalSubscriptionID: fresh.ExternalSubscriptionID,
			ExternalPriceID:        strPtr(newPriceID),
			ExternalProductID:      fresh.ExternalProductID,
			PlanName:               string(plan.newTier.LicensePlan),
			ProductName:            plan.newTier.Title,
			StartDate:              now,
			ExpiryDate:             now.Add(time.Duration(plan.proration.ValidityInDays) * day),
			ActualPaidPrice:        plan.newTier.Amount,
			Currency:               plan.newTier.Currency,
			Status:                 enums.LicenseStatusActive,
			ValidityInDays:         plan.proration.ValidityInDays,
			DiscountPercentage:     decimal.Zero,
		}
		if sub != nil && sub.ProductID != "" {
			record.ExternalProductID = strPtr(sub.ProductID)
		}
		saved, err := store.UpsertLicense(ctx, record)
		if err != nil {
			return err
		}
		replacement = saved
		return s.emitUpgraded(ctx, tx, saved, fresh, plan.currentTier.ID, plan.newTier.ID, plan.proration)
	})
	if err != nil {
		s.revertPrice(ctx, plan, subscriptionID)
		return nil, err
	}

	s.info(ctx, replacement, "license upgraded")
	return &UpgradeResult{License: replacement, Previous: plan.current, Proration: plan.proration}, nil
}

func (s *service) revertPrice(ctx context.Context, plan *upgradePlan, subscriptionID string) {
	oldPriceID := deref(plan.current.ExternalPriceID)
	if oldPriceID == "" {
		oldPriceID = deref(plan.currentTier.ExternalPriceID)
	}
	if oldPriceID == "" {
		s.warn(ctx, plan.current, "upgrade rolled back without a price to revert to")
		return
	}
	if _, err := s.gateway.UpdateSubscriptionPrice(ctx, subscriptionID, oldPriceID); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithLicenseID(ctx, plan.current.ID.String()), "revert subscription price", err)
	}
}

// PreviewUpgrade returns the local proration and the gateway's own estimate.
func (s *service) PreviewUpgrade(ctx context.Context, userID, newTierID uuid.UUID) (*UpgradePreview, error) {
	plan, err := s.planUpgrade(ctx, userID, newTierID)
	if err != nil {
		return nil, err
	}
	amount, err := s.gateway.GetUpcomingProration(ctx, deref(plan.current.ExternalSubscriptionID), deref(plan.newTier.ExternalPriceID))
	if err != nil {
		return nil, err
	}
	return &UpgradePreview{
		CurrentTier:     plan.currentTier,
		NewTier:         plan.newTier,
		Proration:       plan.proration,
		GatewayProrated: amount,
	}, nil
}

type upgradePlan struct {
	current     *models.UserLicenseDetail
	currentTier *models.LicenseTier
	newTier     *models.LicenseTier
	proration   Proration
}

func (s *service) planUpgrade(ctx context.Context, userID, newTierID uuid.UUID) (*upgradePlan, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if newTierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier_id is required")
	}

	resolution, err := s.ResolveActiveLicense(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !resolution.State.Entitled() || resolution.License == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeForbidden, pkgerrors.ErrNoValidLicense, "an active license is required to upgrade")
	}
	current := resolution.License
	if !current.HasGatewaySubscription() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrCheckoutRequired, "start a subscription through checkout first")
	}
	if current.LicenseTierID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "current license has no tier")
	}

	currentTier, err := s.catalog.GetTierByID(ctx, *current.LicenseTierID)
	if err != nil {
		return nil, err
	}
	newTier, err := s.catalog.GetTierByID(ctx, newTierID)
	if err != nil {
		return nil, err
	}
	if !newTier.Amount.GreaterThan(currentTier.Amount) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, pkgerrors.ErrDowngradeNotAllowed, "only upgrades to a higher priced tier are supported")
	}
	if !newTier.IsActive || deref(newTier.ExternalPriceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier is not available for purchase")
	}

	proration, err := ComputeProration(*currentTier, *newTier, current.ExpiryDate, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &upgradePlan{
		current:     current,
		currentTier: currentTier,
		newTier:     newTier,
		proration:   proration,
	}, nil
}

// IngestGatewaySubscriptionEvent persists gateway subscription state. Replays
// of the same event leave exactly one license row and one invoice row.
func (s *service) IngestGatewaySubscriptionEvent(ctx context.Context, event GatewaySubscriptionEvent) (*models.UserLicenseDetail, error) {
	sub := event.Subscription
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	userID, err := s.resolveSubscriber(ctx, event)
	if err != nil {
		return nil, err
	}

	var tier *models.LicenseTier
	if sub.PriceID != "" {
		tier, err = s.catalog.GetTierByExternalPriceID(ctx, sub.PriceID)
		if err != nil {
			if !errors.Is(err, pkgerrors.ErrNotFound) {
				return nil, err
			}
			s.warnFields(ctx, map[string]any{"user_id": userID.String(), "price_id": sub.PriceID}, "no catalog tier for subscription price")
			tier = nil
		}
	}

	now := s.now().UTC()
	var ingested *models.UserLicenseDetail
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, userID); err != nil {
			return err
		}
		store := s.store.WithTx(tx)

		record, created, err := locateSubscriptionRecord(ctx, store, userID, sub.ID)
		if err != nil {
			return err
		}

		patch := subscriptionPatch(sub, event.Invoice, tier)
		if !created && patch.ExpiryDate != nil && record.ExpiryDate.After(*patch.ExpiryDate) {
			// prorated upgrade: start, validity and expiry stay consistent with each other
			patch.ExpiryDate = nil
			patch.StartDate = nil
			patch.ValidityInDays = nil
		}
		entitlements.ApplySubscription(record, patch)
		fillDefaults(record, tier, now)

		if record.Status.IsCurrent() {
			if _, err := store.DeactivateAllActiveLicenses(ctx, userID, record.ID); err != nil {
				return err
			}
		}
		saved, err := store.UpsertLicense(ctx, record)
		if err != nil {
			return err
		}

		invoiceID := ""
		if event.Invoice != nil && event.Invoice.ID != "" {
			invoiceID = event.Invoice.ID
			if _, err := store.UpsertInvoice(ctx, invoiceRecord(saved.ID, event.Invoice)); err != nil {
				return err
			}
		}
		ingested = saved
		return s.emitSubscriptionSynced(ctx, tx, saved, sub.ID, invoiceID, created)
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, ingested, "gateway subscription ingested")
	return ingested, nil
}

// resolveSubscriber finds the owning user: the record already holding the
// subscription, then the explicit user id, then checkout metadata, then email.
func (s *service) resolveSubscriber(ctx context.Context, event GatewaySubscriptionEvent) (uuid.UUID, error) {
	sub := event.Subscription
	existing, err := s.store.FindBySubscriptionID(ctx, sub.ID)
	switch {
	case err == nil:
		return existing.UserID, nil
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return uuid.Nil, err
	}

	if event.UserID != uuid.Nil {
		return event.UserID, nil
	}
	if id, ok := sub.UserID(); ok {
		return id, nil
	}

	email := sub.CustomerEmail
	if email == "" && event.Invoice != nil {
		email = event.Invoice.CustomerEmail
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return uuid.Nil, pkgerrors.NotFound("no user matches the subscription")
		}
		return uuid.Nil, err
	}
	return user.ID, nil
}

// locateSubscriptionRecord returns the row holding subscriptionID, else the
// user's current pre-gateway row, else a new row.
func locateSubscriptionRecord(ctx context.Context, store entitlements.Store, userID uuid.UUID, subscriptionID string) (*models.UserLicenseDetail, bool, error) {
	record, err := store.FindBySubscriptionID(ctx, subscriptionID)
	if err == nil {
		return record, false, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, false, err
	}

	current, err := store.GetActiveLicense(ctx, userID)
	switch {
	case err == nil:
		if !current.IsTrial() && !current.HasGatewaySubscription() {
			return current, false, nil
		}
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return nil, false, err
	}
	return &models.UserLicenseDetail{UserID: userID}, true, nil
}

func subscriptionPatch(sub *subscriptions.Subscription, invoice *subscriptions.Invoice, tier *models.LicenseTier) entitlements.LicensePatch {
	status := sub.Status.LicenseStatus()
	cancelled := sub.IsCancelled()
	if cancelled && status == enums.LicenseStatusActive {
		status = enums.LicenseStatusRenew
	}
	validity := sub.ValidityInDays()
	price := sub.UnitAmount

	patch := entitlements.LicensePatch{
		ExternalCustomerID:     sub.CustomerID,
		ExternalSubscriptionID: sub.ID,
		ExternalPriceID:        sub.PriceID,
		ExternalProductID:      sub.ProductID,
		PlanName:               sub.PlanName,
		ProductName:            sub.ProductName,
		Currency:               sub.Currency,
		StartDate:              timePtr(sub.CurrentPeriodStart),
		ExpiryDate:             timePtr(sub.CurrentPeriodEnd),
		ActualPaidPrice:        &price,
		Status:                 &status,
		ValidityInDays:         &validity,
		IsCancelled:            &cancelled,
		CancelAt:               sub.CancelAt,
		CancelledOn:            sub.CanceledAt,
		ClearCancellation:      !cancelled,
		Metadata:               map[string]any{"gateway_status": sub.Status.String()},
	}
	if tier != nil {
		tierID := tier.ID
		patch.LicenseTierID = &tierID
	}
	if invoice != nil {
		paid := invoice.AmountPaid
		discount := invoice.DiscountPercentage
		patch.ActualPaidPrice = &paid
		patch.DiscountPercentage = &discount
	}
	return patch
}

func fillDefaults(record *models.UserLicenseDetail, tier *models.LicenseTier, now time.Time) {
	if record.StartDate.IsZero() {
		record.StartDate = now
	}
	if record.ValidityInDays <= 0 {
		record.ValidityInDays = 1
		if tier != nil && tier.ValidityInDays > 0 {
			record.ValidityInDays = tier.ValidityInDays
		}
	}
	if record.ExpiryDate.IsZero() {
		record.ExpiryDate = record.StartDate.Add(time.Duration(record.ValidityInDays) * day)
	}
	if record.Currency == "" {
		record.Currency = "usd"
	}
	if tier != nil && record.ProductName == "" {
		record.ProductName = tier.Title
	}
}

func invoiceRecord(licenseID uuid.UUID, inv *subscriptions.Invoice) *models.Invoice {
	return &models.Invoice{
		UserLicenseDetailID: licenseID,
		ExternalInvoiceID:   inv.ID,
		Currency:            inv.Currency,
		AmountPaid:          inv.AmountPaid,
		AmountDue:           inv.AmountDue,
		AmountRemaining:     inv.AmountRemaining,
		PeriodStart:         inv.PeriodStart,
		PeriodEnd:           inv.PeriodEnd,
		DiscountPercentage:  inv.DiscountPercentage,
	}
}

// LicenseHistory lists every record of the user, newest expiry first.
func (s *service) LicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	return s.store.GetLicenseHistory(ctx, userID)
}

// DeleteLicense removes a record and its invoices.
func (s *service) DeleteLicense(ctx context.Context, licenseID uuid.UUID) error {
	record, err := s.store.GetLicenseByID(ctx, licenseID)
	if err != nil {
		return err
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).LockForUpdate(ctx, record.UserID); err != nil {
			return err
		}
		if err := s.store.WithTx(tx).DeleteLicense(ctx, record.ID); err != nil {
			return err
		}
		from := record.Status
		record.Status = enums.LicenseStatusInactive
		return s.emitStatusChanged(ctx, tx, enums.EventLicenseDeactivated, record, from, "deleted by admin")
	})
	if err != nil {
		return err
	}
	s.info(ctx, record, "license deleted")
	return nil
}

func (s *service) info(ctx context.Context, record *models.UserLicenseDetail, msg string) {
	if s.logg == nil || record == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":    record.UserID.String(),
		"license_id": record.ID.String(),
		"status":     record.Status.String(),
	})
	s.logg.Info(ctx, msg)
}

func (s *service) warn(ctx context.Context, record *models.UserLicenseDetail, msg string) {
	s.warnFields(ctx, map[string]any{
		"user_id":    record.UserID.String(),
		"license_id": record.ID.String(),
	}, msg)
}

func (s *service) warnFields(ctx context.Context, fields map[string]any, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func strPtr(v string) *string {
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
