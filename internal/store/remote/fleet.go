package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/events"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// Vehicles is the remote implementation of the vehicle collection.
type Vehicles struct {
	db        *gorm.DB
	resolver  *IdentityResolver
	publisher *events.ChangePublisher
	manager   *realtime.Manager
	tr        translator
}

// NewVehicles creates the remote vehicle collection.
func NewVehicles(db *gorm.DB, resolver *IdentityResolver, publisher *events.ChangePublisher, manager *realtime.Manager) *Vehicles {
	return &Vehicles{
		db:        db,
		resolver:  resolver,
		publisher: publisher,
		manager:   manager,
		tr:        translator{resolver: resolver, userFK: map[string]bool{"agencyId": true}},
	}
}

var _ store.Collection[fleet.Vehicle] = (*Vehicles)(nil)

// Create inserts the vehicle, minting an identifier if it carries none.
func (r *Vehicles) Create(ctx context.Context, rec fleet.Vehicle) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	agencyID, err := r.resolver.RowID(ctx, rec.AgencyID)
	if err != nil {
		return "", err
	}
	model := VehicleModel{
		ID:                 rec.ID,
		AgencyID:           agencyID,
		RegistrationNumber: rec.RegistrationNumber,
		TankerSize:         string(rec.TankerSize),
		CapacityLitres:     rec.CapacityLitres,
		IsDefault:          rec.IsDefault,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", translateError("failed to create vehicle", err)
	}
	r.publisher.Publish(ctx, "vehicles", realtime.EventInsert, recordSnapshot(rec))
	return rec.ID, nil
}

// Get returns the vehicle with the given id, or (nil, nil) if absent.
func (r *Vehicles) Get(ctx context.Context, id string) (*fleet.Vehicle, error) {
	var model VehicleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError("failed to get vehicle", err)
	}
	return r.toDomain(ctx, &model)
}

// Update merges the patch into the stored row. Fails with a NotFoundError if
// absent.
func (r *Vehicles) Update(ctx context.Context, id string, patch store.Patch) error {
	cols, err := r.tr.patchColumns(ctx, patch)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&VehicleModel{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return translateError("failed to update vehicle", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Vehicle", id)
	}
	if updated, err := r.Get(ctx, id); err == nil && updated != nil {
		r.publisher.Publish(ctx, "vehicles", realtime.EventUpdate, recordSnapshot(updated))
	}
	return nil
}

// Delete removes the vehicle; deleting an absent row is a no-op.
func (r *Vehicles) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&VehicleModel{})
	if result.Error != nil {
		return translateError("failed to delete vehicle", result.Error)
	}
	if result.RowsAffected > 0 {
		r.publisher.Publish(ctx, "vehicles", realtime.EventDelete, map[string]any{"id": id})
	}
	return nil
}

// Query returns the vehicles matching q.
func (r *Vehicles) Query(ctx context.Context, q store.Query) ([]fleet.Vehicle, error) {
	tx := r.db.WithContext(ctx).Model(&VehicleModel{})
	tx, err := r.tr.applyWhere(ctx, tx, q.Where)
	if err != nil {
		return nil, err
	}
	tx = applyOrder(tx, q)

	var models []VehicleModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, translateError("failed to query vehicles", err)
	}
	out := make([]fleet.Vehicle, 0, len(models))
	for i := range models {
		rec, err := r.toDomain(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Subscribe registers a live-update listener for vehicles matching filterKey.
func (r *Vehicles) Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error) {
	if r.manager == nil {
		return nil, fmt.Errorf("vehicles collection has no subscription manager")
	}
	desc := realtime.Descriptor{
		Name:    "vehicles|" + filterKey,
		Table:   "vehicles",
		Filter:  realtime.ParseFilter(filterKey),
		OnError: onError,
	}
	return r.manager.Subscribe(desc, handler)
}

func (r *Vehicles) toDomain(ctx context.Context, m *VehicleModel) (*fleet.Vehicle, error) {
	agencyID, err := r.resolver.AuthID(ctx, m.AgencyID)
	if err != nil {
		return nil, err
	}
	return &fleet.Vehicle{
		ID:                 m.ID,
		AgencyID:           agencyID,
		RegistrationNumber: m.RegistrationNumber,
		TankerSize:         booking.TankerSize(m.TankerSize),
		CapacityLitres:     m.CapacityLitres,
		IsDefault:          m.IsDefault,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

// BankAccounts is the remote implementation of the bank-account collection.
type BankAccounts struct {
	db        *gorm.DB
	resolver  *IdentityResolver
	publisher *events.ChangePublisher
	manager   *realtime.Manager
	tr        translator
}

// NewBankAccounts creates the remote bank-account collection.
func NewBankAccounts(db *gorm.DB, resolver *IdentityResolver, publisher *events.ChangePublisher, manager *realtime.Manager) *BankAccounts {
	return &BankAccounts{
		db:        db,
		resolver:  resolver,
		publisher: publisher,
		manager:   manager,
		tr:        translator{resolver: resolver, userFK: map[string]bool{"agencyId": true}},
	}
}

var _ store.Collection[fleet.BankAccount] = (*BankAccounts)(nil)

// Create inserts the bank account, minting an identifier if it carries none.
func (r *BankAccounts) Create(ctx context.Context, rec fleet.BankAccount) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	agencyID, err := r.resolver.RowID(ctx, rec.AgencyID)
	if err != nil {
		return "", err
	}
	model := BankAccountModel{
		ID:            rec.ID,
		AgencyID:      agencyID,
		BankName:      rec.BankName,
		AccountNumber: rec.AccountNumber,
		HolderName:    rec.HolderName,
		IFSCCode:      rec.IFSCCode,
		IsDefault:     rec.IsDefault,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", translateError("failed to create bank account", err)
	}
	r.publisher.Publish(ctx, "bank_accounts", realtime.EventInsert, recordSnapshot(rec))
	return rec.ID, nil
}

// Get returns the bank account with the given id, or (nil, nil) if absent.
func (r *BankAccounts) Get(ctx context.Context, id string) (*fleet.BankAccount, error) {
	var model BankAccountModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError("failed to get bank account", err)
	}
	return r.toDomain(ctx, &model)
}

// Update merges the patch into the stored row. Fails with a NotFoundError if
// absent.
func (r *BankAccounts) Update(ctx context.Context, id string, patch store.Patch) error {
	cols, err := r.tr.patchColumns(ctx, patch)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&BankAccountModel{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return translateError("failed to update bank account", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("BankAccount", id)
	}
	if updated, err := r.Get(ctx, id); err == nil && updated != nil {
		r.publisher.Publish(ctx, "bank_accounts", realtime.EventUpdate, recordSnapshot(updated))
	}
	return nil
}

// Delete removes the bank account; deleting an absent row is a no-op.
func (r *BankAccounts) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&BankAccountModel{})
	if result.Error != nil {
		return translateError("failed to delete bank account", result.Error)
	}
	if result.RowsAffected > 0 {
		r.publisher.Publish(ctx, "bank_accounts", realtime.EventDelete, map[string]any{"id": id})
	}
	return nil
}

// Query returns the bank accounts matching q.
func (r *BankAccounts) Query(ctx context.Context, q store.Query) ([]fleet.BankAccount, error) {
	tx := r.db.WithContext(ctx).Model(&BankAccountModel{})
	tx, err := r.tr.applyWhere(ctx, tx, q.Where)
	if err != nil {
		return nil, err
	}
	tx = applyOrder(tx, q)

	var models []BankAccountModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, translateError("failed to query bank accounts", err)
	}
	out := make([]fleet.BankAccount, 0, len(models))
	for i := range models {
		rec, err := r.toDomain(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Subscribe registers a live-update listener for bank accounts matching
// filterKey.
func (r *BankAccounts) Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error) {
	if r.manager == nil {
		return nil, fmt.Errorf("bank accounts collection has no subscription manager")
	}
	desc := realtime.Descriptor{
		Name:    "bank_accounts|" + filterKey,
		Table:   "bank_accounts",
		Filter:  realtime.ParseFilter(filterKey),
		OnError: onError,
	}
	return r.manager.Subscribe(desc, handler)
}

func (r *BankAccounts) toDomain(ctx context.Context, m *BankAccountModel) (*fleet.BankAccount, error) {
	agencyID, err := r.resolver.AuthID(ctx, m.AgencyID)
	if err != nil {
		return nil, err
	}
	return &fleet.BankAccount{
		ID:            m.ID,
		AgencyID:      agencyID,
		BankName:      m.BankName,
		AccountNumber: m.AccountNumber,
		HolderName:    m.HolderName,
		IFSCCode:      m.IFSCCode,
		IsDefault:     m.IsDefault,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}
