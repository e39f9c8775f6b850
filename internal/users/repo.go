package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/campusdesk/campusdesk-backend/pkg/db"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	pkgerrors "github.com/campusdesk/campusdesk-backend/pkg/errors"
)

// Lookup is the read-only user collaborator consumed by the licensing core.
type Lookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Repository exposes user reads plus the per-user row lock.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// GetByID loads a user by their UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

// GetByEmail retrieves the user matching the provided email, ignoring case.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, pkgerrors.NotFound("user not found")
	}
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", normalized).First(&user).Error; err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

// LockForUpdate takes the row lock that serializes license mutations for a user.
// Must be called on a transaction-bound repository.
func (r *Repository) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	var user models.User
	if err := pkgdb.ForUpdate(r.db.WithContext(ctx)).
		Select("id").
		First(&user, "id = ?", id).Error; err != nil {
		return userLookupError(err)
	}
	return nil
}

func userLookupError(err error) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.NotFound("user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
}
