package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain"
)

// IdentityResolver translates between the externally-visible auth identity
// and the internal users row identifier. Every foreign-key write resolves
// external to internal; every read reverses the mapping, so callers see one
// uniform identifier space across backends. Rows migrated from the device
// store may have no auth identity yet; for those the row id doubles as the
// external id.
type IdentityResolver struct {
	db *gorm.DB

	mu     sync.RWMutex
	toRow  map[string]string
	toAuth map[string]string
}

// NewIdentityResolver creates a resolver over the users table.
func NewIdentityResolver(db *gorm.DB) *IdentityResolver {
	return &IdentityResolver{
		db:     db,
		toRow:  make(map[string]string),
		toAuth: make(map[string]string),
	}
}

// RowID resolves an external identifier to the internal users row id. It
// tries auth_id first, then falls back to treating the value as a row id.
func (r *IdentityResolver) RowID(ctx context.Context, externalID string) (string, error) {
	if externalID == "" {
		return "", domain.NewValidationError("empty user identifier")
	}

	r.mu.RLock()
	rowID, ok := r.toRow[externalID]
	r.mu.RUnlock()
	if ok {
		return rowID, nil
	}

	var model UserModel
	err := r.db.WithContext(ctx).Where("auth_id = ?", externalID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.WithContext(ctx).Where("id = ?", externalID).First(&model).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.NewNotFoundError("User", externalID)
		}
		return "", domain.NewTransientStorageError(fmt.Errorf("resolve user %s: %w", externalID, err))
	}

	r.cache(model)
	return model.ID, nil
}

// AuthID resolves an internal row id back to the externally-visible
// identifier. Rows without an auth identity resolve to their own row id.
func (r *IdentityResolver) AuthID(ctx context.Context, rowID string) (string, error) {
	r.mu.RLock()
	authID, ok := r.toAuth[rowID]
	r.mu.RUnlock()
	if ok {
		return authID, nil
	}

	var model UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", rowID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.NewNotFoundError("User", rowID)
		}
		return "", domain.NewTransientStorageError(fmt.Errorf("resolve user %s: %w", rowID, err))
	}

	r.cache(model)
	if model.AuthID == "" {
		return model.ID, nil
	}
	return model.AuthID, nil
}

// Invalidate drops a cached mapping, e.g. after an auth account is linked.
func (r *IdentityResolver) Invalidate(rowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if authID, ok := r.toAuth[rowID]; ok {
		delete(r.toRow, authID)
	}
	delete(r.toRow, rowID)
	delete(r.toAuth, rowID)
}

func (r *IdentityResolver) cache(model UserModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	external := model.AuthID
	if external == "" {
		external = model.ID
	}
	r.toRow[external] = model.ID
	r.toRow[model.ID] = model.ID
	r.toAuth[model.ID] = external
}
