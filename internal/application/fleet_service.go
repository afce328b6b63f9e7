package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/store"
)

// FleetService manages the agency-owned resources: vehicles and bank
// accounts. The default flag is exclusive within one agency's scope;
// flipping it is sequenced (unset siblings, then set the target), not
// atomic, like every composite flow over the persistence contract.
type FleetService struct {
	vehicles store.Collection[fleet.Vehicle]
	accounts store.Collection[fleet.BankAccount]
	logger   *zap.Logger
}

// NewFleetService creates a fleet service over the given collections.
func NewFleetService(vehicles store.Collection[fleet.Vehicle], accounts store.Collection[fleet.BankAccount], logger *zap.Logger) *FleetService {
	return &FleetService{vehicles: vehicles, accounts: accounts, logger: logger}
}

// AddVehicle validates and persists a new vehicle. If the vehicle is marked
// default, siblings of the same agency are unset first.
func (s *FleetService) AddVehicle(ctx context.Context, v fleet.Vehicle) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	v.ID = ""
	v.CreatedAt = now
	v.UpdatedAt = now

	if v.IsDefault {
		if err := s.unsetDefaultVehicles(ctx, v.AgencyID, ""); err != nil {
			return "", err
		}
	}
	id, err := s.vehicles.Create(ctx, v)
	if err != nil {
		return "", err
	}
	s.logger.Info("vehicle added",
		zap.String("vehicle_id", id),
		zap.String("agency_id", v.AgencyID),
	)
	return id, nil
}

// VehiclesByAgency returns the agency's vehicles.
func (s *FleetService) VehiclesByAgency(ctx context.Context, agencyID string) ([]fleet.Vehicle, error) {
	return s.vehicles.Query(ctx, store.Query{
		Where:  map[string]any{"agencyId": agencyID},
		SortBy: "createdAt",
		Order:  store.Desc,
	})
}

// SetDefaultVehicle makes the given vehicle the agency's default, unsetting
// every sibling of the same agency and never touching other owners.
func (s *FleetService) SetDefaultVehicle(ctx context.Context, agencyID, vehicleID string) error {
	target, err := s.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return err
	}
	if target == nil || target.AgencyID != agencyID {
		return domain.NewNotFoundError("Vehicle", vehicleID)
	}

	if err := s.unsetDefaultVehicles(ctx, agencyID, vehicleID); err != nil {
		return err
	}
	return s.vehicles.Update(ctx, vehicleID, store.Patch{
		"isDefault": true,
		"updatedAt": time.Now().UTC(),
	})
}

// RemoveVehicle deletes the vehicle; removing an absent vehicle is a no-op.
func (s *FleetService) RemoveVehicle(ctx context.Context, id string) error {
	return s.vehicles.Delete(ctx, id)
}

func (s *FleetService) unsetDefaultVehicles(ctx context.Context, agencyID, exceptID string) error {
	siblings, err := s.vehicles.Query(ctx, store.Query{
		Where: map[string]any{"agencyId": agencyID, "isDefault": true},
	})
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == exceptID {
			continue
		}
		patch := store.Patch{"isDefault": false, "updatedAt": time.Now().UTC()}
		if err := s.vehicles.Update(ctx, sibling.ID, patch); err != nil {
			return err
		}
	}
	return nil
}

// AddBankAccount validates and persists a new bank account. If the account
// is marked default, siblings of the same agency are unset first.
func (s *FleetService) AddBankAccount(ctx context.Context, a fleet.BankAccount) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	a.ID = ""
	a.CreatedAt = now
	a.UpdatedAt = now

	if a.IsDefault {
		if err := s.unsetDefaultAccounts(ctx, a.AgencyID, ""); err != nil {
			return "", err
		}
	}
	id, err := s.accounts.Create(ctx, a)
	if err != nil {
		return "", err
	}
	s.logger.Info("bank account added",
		zap.String("account_id", id),
		zap.String("agency_id", a.AgencyID),
	)
	return id, nil
}

// BankAccountsByAgency returns the agency's bank accounts.
func (s *FleetService) BankAccountsByAgency(ctx context.Context, agencyID string) ([]fleet.BankAccount, error) {
	return s.accounts.Query(ctx, store.Query{
		Where:  map[string]any{"agencyId": agencyID},
		SortBy: "createdAt",
		Order:  store.Desc,
	})
}

// SetDefaultBankAccount makes the given account the agency's default,
// unsetting every sibling of the same agency.
func (s *FleetService) SetDefaultBankAccount(ctx context.Context, agencyID, accountID string) error {
	target, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if target == nil || target.AgencyID != agencyID {
		return domain.NewNotFoundError("BankAccount", accountID)
	}

	if err := s.unsetDefaultAccounts(ctx, agencyID, accountID); err != nil {
		return err
	}
	return s.accounts.Update(ctx, accountID, store.Patch{
		"isDefault": true,
		"updatedAt": time.Now().UTC(),
	})
}

// RemoveBankAccount deletes the account; removing an absent account is a
// no-op.
func (s *FleetService) RemoveBankAccount(ctx context.Context, id string) error {
	return s.accounts.Delete(ctx, id)
}

func (s *FleetService) unsetDefaultAccounts(ctx context.Context, agencyID, exceptID string) error {
	siblings, err := s.accounts.Query(ctx, store.Query{
		Where: map[string]any{"agencyId": agencyID, "isDefault": true},
	})
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == exceptID {
			continue
		}
		patch := store.Patch{"isDefault": false, "updatedAt": time.Now().UTC()}
		if err := s.accounts.Update(ctx, sibling.ID, patch); err != nil {
			return err
		}
	}
	return nil
}
