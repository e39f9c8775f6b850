package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/campusdesk/campusdesk-backend/pkg/db"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
)

// Store persists user license grants and their invoices.
// Reads return errors matching pkgerrors.ErrNotFound on a miss; writes return
// errors matching pkgerrors.ErrPersistence.
type Store interface {
	WithTx(tx *gorm.DB) Store
	GetActiveLicense(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error)
	GetLicenseByID(ctx context.Context, id uuid.UUID) (*models.UserLicenseDetail, error)
	GetLicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.UserLicenseDetail, error)
	UpsertLicense(ctx context.Context, record *models.UserLicenseDetail) (*models.UserLicenseDetail, error)
	DeactivateAllActiveLicenses(ctx context.Context, userID uuid.UUID, except ...uuid.UUID) (int64, error)
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
	ListInvoices(ctx context.Context, licenseID uuid.UUID) ([]models.Invoice, error)
	ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.UserLicenseDetail, error)
	ListAwaitingPayment(ctx context.Context, limit int) ([]models.UserLicenseDetail, error)
	DeleteLicense(ctx context.Context, id uuid.UUID) error
}

type store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore returns an entitlement store bound to the provided database.
func NewStore(db *gorm.DB) Store {
	return &store{db: db, now: time.Now}
}

func (s *store) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &store{db: tx, now: s.now}
}

func (s *store) GetActiveLicense(ctx context.Context, userID uuid.UUID) (*models.UserLicenseDetail, error) {
	var record models.UserLicenseDetail
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, enums.CurrentLicenseStatuses).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		return nil, readError(err, "active license not found", "load active license")
	}
	return &record, nil
}

func (s *store) GetLicenseByID(ctx context.Context, id uuid.UUID) (*models.UserLicenseDetail, error) {
	var record models.UserLicenseDetail
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, readError(err, "license not found", "load license")
	}
	return &record, nil
}

func (s *store) GetLicenseHistory(ctx context.Context, userID uuid.UUID) ([]models.UserLicenseDetail, error) {
	var rows []models.UserLicenseDetail
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expiry_date DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load license history")
	}
	return rows, nil
}

// FindBySubscriptionID returns the non-superseded record for a gateway subscription.
// Upgrades keep the subscription id, so inactive rows are history only.
func (s *store) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.UserLicenseDetail, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.NotFound("license not found")
	}
	var record models.UserLicenseDetail
	if err := s.db.WithContext(ctx).
		Where("external_subscription_id = ? AND status <> ?", subscriptionID, enums.LicenseStatusInactive).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		return nil, readError(err, "license not found", "load license by subscription")
	}
	return &record, nil
}

func (s *store) UpsertLicense(ctx context.Context, record *models.UserLicenseDetail) (*models.UserLicenseDetail, error) {
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "license record required")
	}
	record.UpdatedAt = s.now().UTC()
	db := s.db.WithContext(ctx)
	if record.ID == uuid.Nil {
		if err := db.Create(record).Error; err != nil {
			return nil, writeError(err, "create license")
		}
		return record, nil
	}
	if err := db.Save(record).Error; err != nil {
		return nil, writeError(err, "update license")
	}
	return record, nil
}

func (s *store) DeactivateAllActiveLicenses(ctx context.Context, userID uuid.UUID, except ...uuid.UUID) (int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.UserLicenseDetail{}).
		Where("user_id = ? AND status IN ?", userID, enums.CurrentLicenseStatuses)
	if len(except) > 0 {
		query = query.Where("id NOT IN ?", except)
	}
	result := query.Updates(map[string]any{
		"status":       enums.LicenseStatusInactive,
		"is_cancelled": true,
		"is_suspended": true,
		"updated_at":   s.now().UTC(),
	})
	if result.Error != nil {
		return 0, writeError(result.Error, "deactivate active licenses")
	}
	return result.RowsAffected, nil
}

func (s *store) UpsertInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	if invoice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice required")
	}
	if invoice.ExternalInvoiceID == "" || invoice.UserLicenseDetailID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice requires external id and owning license")
	}

	existing, err := s.findInvoice(ctx, invoice.UserLicenseDetailID, invoice.ExternalInvoiceID)
	if err != nil && !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	now := s.now().UTC()
	db := s.db.WithContext(ctx)
	if existing == nil {
		invoice.UpdatedAt = now
		if err := db.Create(invoice).Error; err != nil {
			if !pkgdb.IsUniqueViolation(err, "") {
				return nil, writeError(err, "create invoice")
			}
			// lost an insert race; fall through to update the winner's row
			existing, err = s.findInvoice(ctx, invoice.UserLicenseDetailID, invoice.ExternalInvoiceID)
			if err != nil {
				return nil, writeError(err, "reload invoice")
			}
		} else {
			return invoice, nil
		}
	}

	MergeInvoice(existing, *invoice)
	existing.UpdatedAt = now
	if err := db.Save(existing).Error; err != nil {
		return nil, writeError(err, "update invoice")
	}
	return existing, nil
}

func (s *store) findInvoice(ctx context.Context, licenseID uuid.UUID, externalID string) (*models.Invoice, error) {
	var row models.Invoice
	if err := s.db.WithContext(ctx).
		Where("user_license_detail_id = ? AND external_invoice_id = ?", licenseID, externalID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store) ListInvoices(ctx context.Context, licenseID uuid.UUID) ([]models.Invoice, error) {
	var rows []models.Invoice
	if err := s.db.WithContext(ctx).
		Where("user_license_detail_id = ?", licenseID).
		Order("period_start DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return rows, nil
}

// ListDueForSweep returns live records that the lifecycle rules would transition:
// past expiry, cancelled but not yet flagged for renewal, or never linked to the gateway.
func (s *store) ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.UserLicenseDetail, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.UserLicenseDetail
	if err := s.db.WithContext(ctx).
		Where("status IN ?", enums.CurrentLicenseStatuses).
		Where("(expiry_date < ?) OR (is_cancelled = ? AND status = ?) OR (external_subscription_id IS NULL)",
			now.UTC(), true, enums.LicenseStatusActive).
		Order("expiry_date ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses due for sweep")
	}
	return rows, nil
}

// ListAwaitingPayment returns gateway-backed records stuck in incomplete or past_due.
func (s *store) ListAwaitingPayment(ctx context.Context, limit int) ([]models.UserLicenseDetail, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.UserLicenseDetail
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []enums.LicenseStatus{enums.LicenseStatusIncomplete, enums.LicenseStatusPastDue}).
		Where("external_subscription_id IS NOT NULL AND external_subscription_id <> ?", models.TrialSubscriptionID).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses awaiting payment")
	}
	return rows, nil
}

// DeleteLicense physically removes a record and its invoices. Admin use only.
func (s *store) DeleteLicense(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_license_detail_id = ?", id).Delete(&models.Invoice{}).Error; err != nil {
			return writeError(err, "delete license invoices")
		}
		result := tx.Where("id = ?", id).Delete(&models.UserLicenseDetail{})
		if result.Error != nil {
			return writeError(result.Error, "delete license")
		}
		if result.RowsAffected == 0 {
			return pkgerrors.NotFound("license not found")
		}
		return nil
	})
}

func readError(err error, notFoundMsg, msg string) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.NotFound(notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func writeError(err error, msg string) error {
	if pkgdb.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, fmt.Errorf("%w: %w", pkgerrors.ErrPersistence, err), msg)
	}
	return pkgerrors.Persistence(err, msg)
}
