package licenses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/internal/catalog"
	"github.com/campusdesk/campusdesk-backend/internal/entitlements"
	"github.com/campusdesk/campusdesk-backend/internal/subscriptions"
	"github.com/campusdesk/campusdesk-backend/internal/users"
	pkgdb "github.com/campusdesk/campusdesk-backend/pkg/db"
	"github.com/campusdesk/campusdesk-backend/pkg/db/dbtest"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
	"github.com/campusdesk/campusdesk-backend/pkg/outbox"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	conn    *gorm.DB
	svc     Service
	store   entitlements.Store
	catalog catalog.Service
	gateway *fakeGateway
	outbox  *outbox.Repository
	clock   *testClock
	user    models.User

	trialTier   *models.LicenseTier
	basicTier   *models.LicenseTier
	premiumTier *models.LicenseTier
	cheapTier   *models.LicenseTier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	ctx := context.Background()

	cat, err := catalog.NewService(catalog.NewRepository(conn))
	require.NoError(t, err)

	h := &harness{
		conn:    conn,
		store:   entitlements.NewStore(conn),
		catalog: cat,
		gateway: &fakeGateway{},
		outbox:  outbox.NewRepository(conn),
		clock:   &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		user:    dbtest.SeedUser(t, conn, "teacher@example.com"),
	}

	h.trialTier = h.createTier(t, ctx, "Trial", 0, 15, "", enums.LicensePlanTrial)
	h.cheapTier = h.createTier(t, ctx, "Starter", 199, 30, "price_starter", enums.LicensePlanMonthly)
	h.basicTier = h.createTier(t, ctx, "Basic", 299, 30, "price_basic", enums.LicensePlanMonthly)
	h.premiumTier = h.createTier(t, ctx, "Premium", 399, 30, "price_premium", enums.LicensePlanMonthly)

	svc, err := NewService(ServiceParams{
		DB:      pkgdb.NewFromConn(conn),
		Store:   h.store,
		Users:   users.NewRepository(conn),
		Catalog: cat,
		Gateway: h.gateway,
		Outbox:  outbox.NewService(h.outbox, nil),
		Now:     h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) createTier(t *testing.T, ctx context.Context, title string, amount int64, validity int, priceID string, plan enums.LicensePlan) *models.LicenseTier {
	t.Helper()
	input := catalog.CreateTierInput{
		Title:          title,
		Amount:         decimal.NewFromInt(amount),
		ValidityInDays: validity,
		LicensePlan:    plan,
	}
	if priceID != "" {
		input.ExternalPriceID = &priceID
	}
	created, err := h.catalog.CreateTier(ctx, input)
	require.NoError(t, err)
	return created
}

// seedPaid stores a gateway-backed active license on tier expiring after remaining.
func (h *harness) seedPaid(t *testing.T, tier *models.LicenseTier, remaining time.Duration) *models.UserLicenseDetail {
	t.Helper()
	now := h.clock.Now()
	tierID := tier.ID
	record, err := h.store.UpsertLicense(context.Background(), &models.UserLicenseDetail{
		UserID:                 h.user.ID,
		LicenseTierID:          &tierID,
		ExternalCustomerID:     strPtr("cus_1"),
		ExternalSubscriptionID: strPtr("sub_1"),
		ExternalPriceID:        tier.ExternalPriceID,
		PlanName:               string(tier.LicensePlan),
		ProductName:            tier.Title,
		StartDate:              now.Add(remaining).Add(-time.Duration(tier.ValidityInDays) * day),
		ExpiryDate:             now.Add(remaining),
		ActualPaidPrice:        tier.Amount,
		Currency:               "usd",
		Status:                 enums.LicenseStatusActive,
		ValidityInDays:         tier.ValidityInDays,
	})
	require.NoError(t, err)
	return record
}

func (h *harness) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (h *harness) activeCount(t *testing.T) int64 {
	return h.countRows(t, &models.UserLicenseDetail{}, "user_id = ? AND status = ?", h.user.ID, enums.LicenseStatusActive)
}

func (h *harness) eventTypes(t *testing.T, licenseID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := h.outbox.ListByAggregate(context.Background(), licenseID)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func (h *harness) subscription(id, priceID string, status enums.SubscriptionStatus) *subscriptions.Subscription {
	now := h.clock.Now()
	return &subscriptions.Subscription{
		ID:                 id,
		CustomerID:         "cus_1",
		CustomerEmail:      h.user.Email,
		PriceID:            priceID,
		ProductID:          "prod_1",
		ProductName:        "Basic",
		PlanName:           "monthly",
		Currency:           "usd",
		Status:             status,
		UnitAmount:         decimal.NewFromInt(299),
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(30 * day),
		Metadata:           map[string]string{subscriptions.MetadataUserID: h.user.ID.String()},
	}
}

func TestTrialLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNoLicense, resolution.State)
	assert.Nil(t, resolution.License)

	granted, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)
	assert.True(t, granted.IsTrial())
	assert.Equal(t, 15, granted.ValidityInDays)
	assert.True(t, granted.ActualPaidPrice.IsZero())
	require.NotNil(t, granted.LicenseTierID)
	assert.Equal(t, h.trialTier.ID, *granted.LicenseTierID)

	resolution, err = h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateTrialActive, resolution.State)
	assert.True(t, resolution.State.Entitled())
	assert.Equal(t, 15, resolution.License.ValidityInDays)
	assert.True(t, resolution.License.ExpiryDate.Equal(h.clock.Now().Add(15*day)))

	h.clock.Advance(16 * day)

	resolution, err = h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, resolution.State)
	assert.Equal(t, enums.LicenseStatusExpired, resolution.License.Status)

	stored, err := h.store.GetLicenseByID(ctx, granted.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusExpired, stored.Status)

	again, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, again.State)
	assert.Equal(t, granted.ID, again.License.ID)

	assert.Equal(t, []enums.OutboxEventType{
		enums.EventLicenseTrialGranted,
		enums.EventLicenseExpired,
	}, h.eventTypes(t, granted.ID))
	assert.Zero(t, h.gateway.findCalls)
}

func TestGrantTrialRejectsDuplicateWhileValid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)

	_, err = h.svc.GrantTrial(ctx, h.user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrDuplicateTrial))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	assert.Equal(t, int64(1), h.countRows(t, &models.UserLicenseDetail{}, "user_id = ?", h.user.ID))
}

func TestGrantTrialRejectsAfterTrialEnded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)
	h.clock.Advance(20 * day)

	_, err = h.svc.GrantTrial(ctx, h.user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrTrialExhausted))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestGrantTrialRejectsLegacyTrialPeriodEnded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.UpsertLicense(ctx, &models.UserLicenseDetail{
		UserID:                 h.user.ID,
		ExternalSubscriptionID: strPtr(models.TrialSubscriptionID),
		StartDate:              h.clock.Now().Add(-30 * day),
		ExpiryDate:             h.clock.Now().Add(-15 * day),
		Status:                 enums.LicenseStatusTrialPeriodEnded,
		ValidityInDays:         15,
	})
	require.NoError(t, err)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateTrialEnded, resolution.State)

	_, err = h.svc.GrantTrial(ctx, h.user.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrTrialExhausted))
}

func TestGrantTrialRejectsPaidSubscriber(t *testing.T) {
	h := newHarness(t)
	h.seedPaid(t, h.basicTier, 10*day)

	_, err := h.svc.GrantTrial(context.Background(), h.user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrLicenseAlreadyActive))
}

func TestGrantTrialUnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GrantTrial(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
}

func TestResolveFlagsCancelledLicenseForRenewal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record := h.seedPaid(t, h.basicTier, 10*day)
	record.IsCancelled = true
	_, err := h.store.UpsertLicense(ctx, record)
	require.NoError(t, err)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePendingRenewal, resolution.State)
	assert.True(t, resolution.State.Entitled())

	stored, err := h.store.GetLicenseByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusRenew, stored.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.EventLicenseRenewalPending}, h.eventTypes(t, record.ID))

	h.clock.Advance(11 * day)
	resolution, err = h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, resolution.State)
}

func TestResolveReportsIncompletePayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record := h.seedPaid(t, h.basicTier, 10*day)
	record.Status = enums.LicenseStatusPastDue
	_, err := h.store.UpsertLicense(ctx, record)
	require.NoError(t, err)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIncompletePayment, resolution.State)
	assert.False(t, resolution.State.Entitled())
}

func TestResolveReconcilesTierFromPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record := h.seedPaid(t, h.basicTier, 10*day)
	record.LicenseTierID = nil
	_, err := h.store.UpsertLicense(ctx, record)
	require.NoError(t, err)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, resolution.State)
	require.NotNil(t, resolution.License.LicenseTierID)
	assert.Equal(t, h.basicTier.ID, *resolution.License.LicenseTierID)
	assert.Equal(t, []enums.OutboxEventType{enums.EventLicenseTierChanged}, h.eventTypes(t, record.ID))

	_, err = h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Len(t, h.eventTypes(t, record.ID), 1)
}

func TestResolvePreGatewayRecordIngestsFoundSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record, err := h.store.UpsertLicense(ctx, &models.UserLicenseDetail{
		UserID:         h.user.ID,
		StartDate:      h.clock.Now(),
		ExpiryDate:     h.clock.Now().Add(30 * day),
		Status:         enums.LicenseStatusActive,
		ValidityInDays: 30,
	})
	require.NoError(t, err)
	h.gateway.active = h.subscription("sub_found", "price_basic", enums.SubscriptionStatusActive)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, resolution.State)
	assert.Equal(t, record.ID, resolution.License.ID)
	assert.Equal(t, "sub_found", *resolution.License.ExternalSubscriptionID)
	require.NotNil(t, resolution.License.LicenseTierID)
	assert.Equal(t, h.basicTier.ID, *resolution.License.LicenseTierID)
	assert.Equal(t, 1, h.gateway.findCalls)
	assert.Equal(t, int64(1), h.countRows(t, &models.UserLicenseDetail{}, "user_id = ?", h.user.ID))
}

func TestResolvePreGatewayRecordExpiresWithoutSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record, err := h.store.UpsertLicense(ctx, &models.UserLicenseDetail{
		UserID:         h.user.ID,
		StartDate:      h.clock.Now(),
		ExpiryDate:     h.clock.Now().Add(30 * day),
		Status:         enums.LicenseStatusActive,
		ValidityInDays: 30,
	})
	require.NoError(t, err)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, resolution.State)

	stored, err := h.store.GetLicenseByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusExpired, stored.Status)
}

func TestResolvePreGatewayRecordSurfacesGatewayFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.UpsertLicense(ctx, &models.UserLicenseDetail{
		UserID:         h.user.ID,
		StartDate:      h.clock.Now(),
		ExpiryDate:     h.clock.Now().Add(30 * day),
		Status:         enums.LicenseStatusActive,
		ValidityInDays: 30,
	})
	require.NoError(t, err)
	h.gateway.findErr = pkgerrors.Gateway(errors.New("timeout"), "find subscription")

	_, err = h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrGateway))
	assert.Equal(t, int64(1), h.activeCount(t))
}

func TestUpgradeTierAppliesProration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := h.seedPaid(t, h.basicTier, 10*day)

	result, err := h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Proration.RemainingDays)
	assert.True(t, result.Proration.Credit.Equal(decimal.RequireFromString("99.67")))
	assert.Equal(t, 7, result.Proration.ExtraDays)
	assert.Equal(t, 37, result.License.ValidityInDays)
	assert.True(t, result.License.ExpiryDate.Equal(h.clock.Now().Add(37*day)))
	assert.Equal(t, h.premiumTier.ID, *result.License.LicenseTierID)
	assert.Equal(t, "sub_1", *result.License.ExternalSubscriptionID)
	assert.Equal(t, "price_premium", *result.License.ExternalPriceID)

	require.Len(t, h.gateway.updates, 1)
	assert.Equal(t, priceUpdate{subscriptionID: "sub_1", priceID: "price_premium"}, h.gateway.updates[0])

	old, err := h.store.GetLicenseByID(ctx, previous.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusInactive, old.Status)
	assert.True(t, old.IsCancelled)
	assert.True(t, old.IsSuspended)
	assert.Equal(t, int64(1), h.activeCount(t))
	assert.Equal(t, []enums.OutboxEventType{enums.EventLicenseUpgraded}, h.eventTypes(t, result.License.ID))
}

func TestUpgradeTierRejectsDowngradeWithoutMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := h.seedPaid(t, h.basicTier, 10*day)

	for _, target := range []*models.LicenseTier{h.cheapTier, h.basicTier} {
		_, err := h.svc.UpgradeTier(ctx, h.user.ID, target.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, pkgerrors.ErrDowngradeNotAllowed))
	}

	assert.Empty(t, h.gateway.updates)
	stored, err := h.store.GetLicenseByID(ctx, previous.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusActive, stored.Status)
	assert.Equal(t, int64(1), h.countRows(t, &models.UserLicenseDetail{}, "user_id = ?", h.user.ID))
}

func TestUpgradeTierRequiresPaidLicense(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrNoValidLicense))

	_, err = h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)
	_, err = h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrCheckoutRequired))
	assert.Empty(t, h.gateway.updates)
}

func TestUpgradeTierGatewayFailureLeavesLicense(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := h.seedPaid(t, h.basicTier, 10*day)
	h.gateway.updateErr = pkgerrors.Gateway(errors.New("card declined"), "update subscription")

	_, err := h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrGateway))

	stored, err := h.store.GetLicenseByID(ctx, previous.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusActive, stored.Status)
	assert.Equal(t, int64(1), h.countRows(t, &models.UserLicenseDetail{}, "user_id = ?", h.user.ID))
}

func TestUpgradeTierRevertsPriceWhenTransactionFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := h.seedPaid(t, h.basicTier, 10*day)
	require.NoError(t, h.conn.Delete(&models.User{}, "id = ?", h.user.ID).Error)

	_, err := h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	require.Error(t, err)

	require.Len(t, h.gateway.updates, 2)
	assert.Equal(t, "price_premium", h.gateway.updates[0].priceID)
	assert.Equal(t, "price_basic", h.gateway.updates[1].priceID)

	stored, err := h.store.GetLicenseByID(ctx, previous.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusActive, stored.Status)
}

func TestPreviewUpgrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPaid(t, h.basicTier, 10*day)
	h.gateway.proration = decimal.RequireFromString("33.33")

	preview, err := h.svc.PreviewUpgrade(ctx, h.user.ID, h.premiumTier.ID)
	require.NoError(t, err)
	assert.Equal(t, 37, preview.Proration.ValidityInDays)
	assert.True(t, preview.GatewayProrated.Equal(decimal.RequireFromString("33.33")))
	assert.Equal(t, priceUpdate{subscriptionID: "sub_1", priceID: "price_premium"}, h.gateway.prorationOf)
	assert.Empty(t, h.gateway.updates)
	assert.Equal(t, h.basicTier.ID, preview.CurrentTier.ID)
}

func TestIngestIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	periodStart := h.clock.Now()
	event := GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_42", "price_basic", enums.SubscriptionStatusActive),
		Invoice: &subscriptions.Invoice{
			ID:              "in_1",
			SubscriptionID:  "sub_42",
			Currency:        "usd",
			AmountPaid:      decimal.NewFromInt(299),
			AmountDue:       decimal.NewFromInt(299),
			AmountRemaining: decimal.Zero,
			PeriodStart:     &periodStart,
		},
	}

	first, err := h.svc.IngestGatewaySubscriptionEvent(ctx, event)
	require.NoError(t, err)
	second, err := h.svc.IngestGatewaySubscriptionEvent(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), h.countRows(t, &models.UserLicenseDetail{}, "user_id = ?", h.user.ID))
	assert.Equal(t, int64(1), h.countRows(t, &models.Invoice{}, "user_license_detail_id = ?", first.ID))
	assert.Equal(t, enums.LicenseStatusActive, second.Status)
	assert.Equal(t, h.basicTier.ID, *second.LicenseTierID)
	assert.Equal(t, 30, second.ValidityInDays)
	assert.True(t, second.ActualPaidPrice.Equal(decimal.NewFromInt(299)))
}

func TestIngestSupersedesTrial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trial, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)

	ingested, err := h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_42", "price_basic", enums.SubscriptionStatusActive),
	})
	require.NoError(t, err)
	assert.NotEqual(t, trial.ID, ingested.ID)

	storedTrial, err := h.store.GetLicenseByID(ctx, trial.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusInactive, storedTrial.Status)
	assert.Equal(t, int64(1), h.activeCount(t))

	_, err = h.svc.GrantTrial(ctx, h.user.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrLicenseAlreadyActive))
}

func TestIngestMapsCancellationAndDeletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.subscription("sub_42", "price_basic", enums.SubscriptionStatusActive)
	_, err := h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{Subscription: sub})
	require.NoError(t, err)

	sub.CancelAtPeriodEnd = true
	cancelled, err := h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{Subscription: sub})
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusRenew, cancelled.Status)
	assert.True(t, cancelled.IsCancelled)

	sub.Status = enums.SubscriptionStatusCanceled
	deleted, err := h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{Subscription: sub})
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusExpired, deleted.Status)
	assert.Equal(t, cancelled.ID, deleted.ID)

	resolution, err := h.svc.ResolveActiveLicense(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, resolution.State)
}

func TestIngestKeepsUnknownPriceWithoutTier(t *testing.T) {
	h := newHarness(t)
	ingested, err := h.svc.IngestGatewaySubscriptionEvent(context.Background(), GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_42", "price_unknown", enums.SubscriptionStatusActive),
	})
	require.NoError(t, err)
	assert.Nil(t, ingested.LicenseTierID)
	assert.Equal(t, "price_unknown", *ingested.ExternalPriceID)
}

func TestIngestResolvesUserByEmail(t *testing.T) {
	h := newHarness(t)
	sub := h.subscription("sub_42", "price_basic", enums.SubscriptionStatusActive)
	sub.Metadata = nil

	ingested, err := h.svc.IngestGatewaySubscriptionEvent(context.Background(), GatewaySubscriptionEvent{Subscription: sub})
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, ingested.UserID)

	sub.CustomerEmail = "nobody@example.com"
	sub.ID = "sub_other"
	_, err = h.svc.IngestGatewaySubscriptionEvent(context.Background(), GatewaySubscriptionEvent{Subscription: sub})
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
}

func TestIngestKeepsProratedExpiryAfterUpgrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPaid(t, h.basicTier, 10*day)

	result, err := h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	require.NoError(t, err)

	require.Equal(t, 37, result.License.ValidityInDays)

	sub := h.subscription("sub_1", "price_premium", enums.SubscriptionStatusActive)
	sub.CurrentPeriodStart = h.clock.Now().Add(-20 * day)
	sub.CurrentPeriodEnd = h.clock.Now().Add(10 * day)
	synced, err := h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{Subscription: sub})
	require.NoError(t, err)
	assert.Equal(t, result.License.ID, synced.ID)
	assert.True(t, synced.ExpiryDate.Equal(result.License.ExpiryDate))
	assert.Equal(t, 37, synced.ValidityInDays)
	assert.True(t, synced.StartDate.Equal(result.License.StartDate))

	stored, err := h.store.GetLicenseByID(ctx, synced.ID)
	require.NoError(t, err)
	assert.Equal(t, 37, stored.ValidityInDays)
	assert.True(t, stored.ExpiryDate.Equal(stored.StartDate.Add(37*day)))
}

func TestAtMostOneActiveLicenseAcrossOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, h.activeCount(t), int64(1))

	_, err = h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_1", "price_basic", enums.SubscriptionStatusActive),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, h.activeCount(t), int64(1))

	_, err = h.svc.UpgradeTier(ctx, h.user.ID, h.premiumTier.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, h.activeCount(t), int64(1))

	_, err = h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_2", "price_basic", enums.SubscriptionStatusActive),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.activeCount(t))

	current := h.countRows(t, &models.UserLicenseDetail{}, "user_id = ? AND status IN ?", h.user.ID, enums.CurrentLicenseStatuses)
	assert.Equal(t, int64(1), current)
}

func TestDeleteLicenseEmitsDeactivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record := h.seedPaid(t, h.basicTier, 10*day)

	require.NoError(t, h.svc.DeleteLicense(ctx, record.ID))
	_, err := h.store.GetLicenseByID(ctx, record.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	assert.Equal(t, []enums.OutboxEventType{enums.EventLicenseDeactivated}, h.eventTypes(t, record.ID))

	err = h.svc.DeleteLicense(ctx, record.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
}

func TestLicenseHistoryOrdersByExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.GrantTrial(ctx, h.user.ID)
	require.NoError(t, err)
	_, err = h.svc.IngestGatewaySubscriptionEvent(ctx, GatewaySubscriptionEvent{
		Subscription: h.subscription("sub_1", "price_basic", enums.SubscriptionStatusActive),
	})
	require.NoError(t, err)

	history, err := h.svc.LicenseHistory(ctx, h.user.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "sub_1", *history[0].ExternalSubscriptionID)
	assert.True(t, history[1].IsTrial())
}
