//go:build integration

package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/domain/user"
	"github.com/tankerflow/booking-engine/internal/migration"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
	"github.com/tankerflow/booking-engine/internal/store/local"
	"github.com/tankerflow/booking-engine/internal/store/remote"
)

// TestRemoteLifecycle_AcceptFlow drives a booking from creation through
// acceptance against the relational backend and verifies that external
// identities are translated to row identifiers on write and back on read.
func TestRemoteLifecycle_AcceptFlow(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	stack := setupBookingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.Cleanup()
	ctx := context.Background()

	_, err := stack.Users.Create(ctx, user.User{
		AuthID: "auth-cust-1", Role: user.RoleCustomer,
		Name: "Asha", Email: "asha@example.com", Phone: "9000000001",
	})
	require.NoError(t, err)
	driverRowID, err := stack.Users.Create(ctx, user.User{
		AuthID: "auth-drv-1", Role: user.RoleDriver,
		Name: "Dinesh", Email: "dinesh@example.com", Phone: "9000000002",
		Driver: &user.DriverProfile{LicenseNumber: "MH-123", Approved: true},
	})
	require.NoError(t, err)

	bookingID, err := stack.Lifecycle.CreateBooking(ctx, seedDraft("auth-cust-1"))
	require.NoError(t, err)

	err = stack.Lifecycle.UpdateStatus(ctx, bookingID, booking.StatusAccepted, store.Patch{
		"driverId":  "auth-drv-1",
		"canCancel": false,
	})
	require.NoError(t, err)

	// The row stores internal identifiers.
	model := waitForBookingStatus(t, infra.DB, bookingID, "accepted", 5*time.Second)
	require.NotNil(t, model.DriverID)
	assert.Equal(t, driverRowID, *model.DriverID)
	assert.False(t, model.CanCancel)
	require.NotNil(t, model.AcceptedAt)

	// The domain read translates them back to external identities.
	got, err := stack.Lifecycle.GetBookingByID(ctx, bookingID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "auth-cust-1", got.CustomerID)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, "auth-drv-1", *got.DriverID)
}

// TestSubscription_ReceivesRowChanges verifies a subscribed handler sees
// the change event published after a write.
func TestSubscription_ReceivesRowChanges(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	stack := setupBookingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.Cleanup()
	ctx := context.Background()

	_, err := stack.Users.Create(ctx, user.User{
		AuthID: "auth-cust-1", Role: user.RoleCustomer,
		Name: "Asha", Email: "asha@example.com",
	})
	require.NoError(t, err)

	bookingID, err := stack.Lifecycle.CreateBooking(ctx, seedDraft("auth-cust-1"))
	require.NoError(t, err)

	drain := newDrain()
	unsubscribe, err := stack.Lifecycle.Subscribe(bookingID, drain.handler, func(err error) {
		t.Logf("subscription error: %v", err)
	})
	require.NoError(t, err)
	defer unsubscribe()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	result := stack.Payments.ProcessPayment(ctx, bookingID, 550)
	require.True(t, result.Success, "unexpected payment error: %s", result.Error)

	ev := drain.waitFor(t, 30*time.Second, func(ev realtime.Event) bool {
		return ev.Table == "bookings" && ev.Type == realtime.EventUpdate && ev.Record["id"] == bookingID
	})
	assert.Equal(t, result.PaymentID, ev.Record["paymentId"])
}

// TestMigration_ConsolidatesUsersAndRemapsReferences runs the full pipeline
// against a seeded on-device store: duplicate contact identities collapse
// onto one user and every imported reference points at new identifiers.
func TestMigration_ConsolidatesUsersAndRemapsReferences(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	src := openLocalStore(t)
	ctx := context.Background()

	users := local.NewCollection[user.User](src, local.CollectionUsers, "User", nil)
	bookings := local.NewCollection[booking.Booking](src, local.CollectionBookings, "Booking", nil)
	vehicles := local.NewCollection[fleet.Vehicle](src, local.CollectionVehicles, "Vehicle", nil)
	accounts := local.NewCollection[fleet.BankAccount](src, local.CollectionBankAccounts, "BankAccount", nil)

	seed := func(rec user.User) {
		_, err := users.Create(ctx, rec)
		require.NoError(t, err)
	}
	seed(user.User{ID: "legacy-cust", Role: user.RoleCustomer, Name: "Asha", Email: "asha@example.com", Phone: "9000000001"})
	seed(user.User{ID: "legacy-drv", Role: user.RoleDriver, Name: "Asha", Email: "ASHA@example.com",
		Driver: &user.DriverProfile{LicenseNumber: "MH-123"}})
	seed(user.User{ID: "legacy-admin", Role: user.RoleAdmin, Name: "Tanker Co", Email: "ops@tankerco.in",
		Admin: &user.AdminProfile{BusinessName: "Tanker Co"}})

	driverRef := "legacy-drv"
	draft := seedDraft("legacy-cust")
	draft.ID = "legacy-booking"
	draft.Status = booking.StatusAccepted
	draft.DriverID = &driverRef
	_, err := bookings.Create(ctx, draft)
	require.NoError(t, err)

	_, err = vehicles.Create(ctx, fleet.Vehicle{
		ID: "legacy-vehicle", AgencyID: "legacy-admin",
		RegistrationNumber: "MH12AB1234", TankerSize: booking.TankerMedium, CapacityLitres: 5000,
	})
	require.NoError(t, err)
	_, err = accounts.Create(ctx, fleet.BankAccount{
		ID: "legacy-account", AgencyID: "legacy-admin",
		AccountNumber: "000111222333", HolderName: "Tanker Co", IFSCCode: "SBIN0001234",
	})
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	engine := migration.NewEngine(src, infra.DB, migration.DefaultOptions(), logger)
	report := engine.Run(ctx)

	require.Empty(t, report.Errors)
	require.True(t, report.Success)
	assert.Equal(t, 3, report.Exported["users"])
	assert.Equal(t, 2, report.Imported["users"], "duplicate email collapses onto one identity")

	var userCount, roleCount int64
	require.NoError(t, infra.DB.Model(&remote.UserModel{}).Count(&userCount).Error)
	require.NoError(t, infra.DB.Model(&remote.UserRoleModel{}).Count(&roleCount).Error)
	assert.EqualValues(t, 2, userCount)
	assert.EqualValues(t, 3, roleCount, "both roles of the merged identity survive")

	// The customer and driver legacy ids resolve to the same new identifier.
	newUserID := report.Mapping.Users["legacy-cust"]
	require.NotEmpty(t, newUserID)
	assert.Equal(t, newUserID, report.Mapping.Users["legacy-drv"])

	var bookingRow remote.BookingModel
	require.NoError(t, infra.DB.Where("id = ?", report.Mapping.Bookings["legacy-booking"]).First(&bookingRow).Error)
	assert.Equal(t, newUserID, bookingRow.CustomerID)
	require.NotNil(t, bookingRow.DriverID)
	assert.Equal(t, newUserID, *bookingRow.DriverID)
	assert.Equal(t, "accepted", bookingRow.Status)

	var vehicleRow remote.VehicleModel
	require.NoError(t, infra.DB.Where("id = ?", report.Mapping.Vehicles["legacy-vehicle"]).First(&vehicleRow).Error)
	assert.Equal(t, report.Mapping.Users["legacy-admin"], vehicleRow.AgencyID)

	var accountRow remote.BankAccountModel
	require.NoError(t, infra.DB.Where("id = ?", report.Mapping.BankAccounts["legacy-account"]).First(&accountRow).Error)
	assert.Equal(t, report.Mapping.Users["legacy-admin"], accountRow.AgencyID)
}

// TestMigration_SkipExistingMergesOntoBackendUser verifies that a legacy
// user whose email already exists in the backend is merged, not duplicated,
// and that references to the legacy id land on the existing row.
func TestMigration_SkipExistingMergesOntoBackendUser(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	stack := setupBookingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.Cleanup()
	src := openLocalStore(t)
	ctx := context.Background()

	existingID, err := stack.Users.Create(ctx, user.User{
		AuthID: "auth-cust-1", Role: user.RoleCustomer,
		Name: "Asha", Email: "asha@example.com", Phone: "9000000001",
	})
	require.NoError(t, err)

	users := local.NewCollection[user.User](src, local.CollectionUsers, "User", nil)
	bookings := local.NewCollection[booking.Booking](src, local.CollectionBookings, "Booking", nil)
	_, err = users.Create(ctx, user.User{ID: "legacy-cust", Role: user.RoleCustomer, Name: "Asha K", Email: "Asha@Example.com", Phone: "9000000009"})
	require.NoError(t, err)
	draft := seedDraft("legacy-cust")
	draft.ID = "legacy-booking"
	_, err = bookings.Create(ctx, draft)
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	engine := migration.NewEngine(src, infra.DB, migration.DefaultOptions(), logger)
	report := engine.Run(ctx)

	require.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Imported["users_merged"])
	assert.Equal(t, 0, report.Imported["users"])
	assert.Equal(t, existingID, report.Mapping.Users["legacy-cust"], "legacy id backfilled to the existing row")

	var userCount int64
	require.NoError(t, infra.DB.Model(&remote.UserModel{}).Where("email = ?", "asha@example.com").Count(&userCount).Error)
	assert.EqualValues(t, 1, userCount)

	var bookingRow remote.BookingModel
	require.NoError(t, infra.DB.Where("id = ?", report.Mapping.Bookings["legacy-booking"]).First(&bookingRow).Error)
	assert.Equal(t, existingID, bookingRow.CustomerID)

	// Contact fields refreshed from the migrated record.
	var userRow remote.UserModel
	require.NoError(t, infra.DB.Where("id = ?", existingID).First(&userRow).Error)
	assert.Equal(t, "Asha K", userRow.Name)
	assert.Equal(t, "9000000009", userRow.Phone)
}
