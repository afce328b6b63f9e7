package application

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/store"
	"github.com/tankerflow/booking-engine/internal/store/local"
)

func newTestFleet(t *testing.T) (*FleetService, store.Collection[fleet.Vehicle], store.Collection[fleet.BankAccount]) {
	t.Helper()
	s, err := local.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	vehicles := local.NewCollection[fleet.Vehicle](s, local.CollectionVehicles, "Vehicle", nil)
	accounts := local.NewCollection[fleet.BankAccount](s, local.CollectionBankAccounts, "BankAccount", nil)
	return NewFleetService(vehicles, accounts, zap.NewNop()), vehicles, accounts
}

func testVehicle(agencyID string, isDefault bool) fleet.Vehicle {
	return fleet.Vehicle{
		AgencyID:           agencyID,
		RegistrationNumber: "MH12AB1234",
		TankerSize:         "medium",
		CapacityLitres:     5000,
		IsDefault:          isDefault,
	}
}

func TestAddVehicleDefaultIsExclusive(t *testing.T) {
	svc, vehicles, _ := newTestFleet(t)
	ctx := context.Background()

	first, err := svc.AddVehicle(ctx, testVehicle("agency-1", true))
	require.NoError(t, err)
	second, err := svc.AddVehicle(ctx, testVehicle("agency-1", true))
	require.NoError(t, err)

	got1, err := vehicles.Get(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, got1)
	assert.False(t, got1.IsDefault, "adding a new default unsets the previous one")

	got2, err := vehicles.Get(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, got2)
	assert.True(t, got2.IsDefault)
}

func TestSetDefaultVehicleScopedToAgency(t *testing.T) {
	svc, vehicles, _ := newTestFleet(t)
	ctx := context.Background()

	mine, err := svc.AddVehicle(ctx, testVehicle("agency-1", true))
	require.NoError(t, err)
	other, err := svc.AddVehicle(ctx, testVehicle("agency-2", true))
	require.NoError(t, err)
	second, err := svc.AddVehicle(ctx, testVehicle("agency-1", false))
	require.NoError(t, err)

	require.NoError(t, svc.SetDefaultVehicle(ctx, "agency-1", second))

	got, err := vehicles.Get(ctx, mine)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)

	got, err = vehicles.Get(ctx, second)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	got, err = vehicles.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, got.IsDefault, "other agencies are never touched")
}

func TestSetDefaultVehicleRejectsForeignVehicle(t *testing.T) {
	svc, _, _ := newTestFleet(t)
	ctx := context.Background()

	other, err := svc.AddVehicle(ctx, testVehicle("agency-2", false))
	require.NoError(t, err)

	err = svc.SetDefaultVehicle(ctx, "agency-1", other)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAddVehicleValidation(t *testing.T) {
	svc, _, _ := newTestFleet(t)

	v := testVehicle("agency-1", false)
	v.RegistrationNumber = ""
	_, err := svc.AddVehicle(context.Background(), v)

	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestBankAccountDefaultIsExclusive(t *testing.T) {
	svc, _, accounts := newTestFleet(t)
	ctx := context.Background()

	account := fleet.BankAccount{
		AgencyID:      "agency-1",
		BankName:      "State Bank",
		AccountNumber: "000111222333",
		HolderName:    "Agency One",
		IFSCCode:      "SBIN0001234",
		IsDefault:     true,
	}
	first, err := svc.AddBankAccount(ctx, account)
	require.NoError(t, err)

	account.AccountNumber = "444555666777"
	second, err := svc.AddBankAccount(ctx, account)
	require.NoError(t, err)

	got, err := accounts.Get(ctx, first)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)

	got, err = accounts.Get(ctx, second)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	require.NoError(t, svc.SetDefaultBankAccount(ctx, "agency-1", first))
	got, err = accounts.Get(ctx, second)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
}

func TestRemoveVehicleIsIdempotent(t *testing.T) {
	svc, _, _ := newTestFleet(t)
	ctx := context.Background()

	id, err := svc.AddVehicle(ctx, testVehicle("agency-1", false))
	require.NoError(t, err)

	require.NoError(t, svc.RemoveVehicle(ctx, id))
	require.NoError(t, svc.RemoveVehicle(ctx, id))
}
