package application

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/store"
	"github.com/tankerflow/booking-engine/internal/store/local"
)

func newTestLifecycle(t *testing.T) *BookingLifecycle {
	t.Helper()
	s, err := local.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	bookings := local.NewCollection[booking.Booking](s, local.CollectionBookings, "Booking", nil)
	return NewBookingLifecycle(bookings, zap.NewNop())
}

func draftBooking() booking.Booking {
	return booking.Booking{
		CustomerID:     "cust-1",
		TankerSize:     booking.TankerMedium,
		Quantity:       1,
		BasePrice:      500,
		DistanceCharge: 50,
		IsImmediate:    true,
		DeliveryAddress: booking.DeliveryAddress{
			Line1:   "12 Lake View Road",
			City:    "Pune",
			Pincode: "411001",
		},
	}
}

func acceptPatch(driverID string) store.Patch {
	return store.Patch{"driverId": driverID, "canCancel": false}
}

func TestCreateBookingDefaults(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	draft := draftBooking()
	draft.Status = booking.StatusDelivered // ignored
	draft.TotalPrice = 9999               // recomputed

	id, err := svc.CreateBooking(ctx, draft)
	require.NoError(t, err)

	got, err := svc.GetBookingByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.Equal(t, booking.PaymentPending, got.PaymentStatus)
	assert.Equal(t, 550.0, got.TotalPrice)
	assert.True(t, got.CanCancel)
	assert.Nil(t, got.DriverID)
	assert.Nil(t, got.AcceptedAt)
}

func TestCreateBookingRejectsInvalidDraft(t *testing.T) {
	svc := newTestLifecycle(t)

	draft := draftBooking()
	draft.Quantity = 0
	_, err := svc.CreateBooking(context.Background(), draft)

	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

// Full happy path: pending, accepted, in transit, delivered.
func TestLifecycleHappyPath(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	id, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, id, booking.StatusAccepted, acceptPatch("driver-9")))

	got, err := svc.GetBookingByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StatusAccepted, got.Status)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, "driver-9", *got.DriverID)
	assert.False(t, got.CanCancel, "accept clears the cancellable flag")
	require.NotNil(t, got.AcceptedAt)
	firstAccepted := *got.AcceptedAt

	require.NoError(t, svc.UpdateStatus(ctx, id, booking.StatusInTransit, nil))
	require.NoError(t, svc.UpdateStatus(ctx, id, booking.StatusDelivered, nil))

	got, err = svc.GetBookingByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, firstAccepted.Equal(*got.AcceptedAt), "acceptedAt is written once")
}

func TestUpdateStatusRejectsSkippedStates(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	id, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)

	err = svc.UpdateStatus(ctx, id, booking.StatusDelivered, nil)
	var invalid *domain.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "pending", invalid.From)
	assert.Equal(t, "delivered", invalid.To)

	err = svc.UpdateStatus(ctx, id, booking.StatusInTransit, nil)
	require.ErrorAs(t, err, &invalid)
}

func TestUpdateStatusRejectsTerminalStates(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	id, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, svc.CancelBooking(ctx, id, "changed my mind"))

	err = svc.UpdateStatus(ctx, id, booking.StatusAccepted, acceptPatch("driver-9"))
	var invalid *domain.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdateStatusAbsentBooking(t *testing.T) {
	svc := newTestLifecycle(t)

	err := svc.UpdateStatus(context.Background(), "no-such-id", booking.StatusAccepted, nil)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

// Cancellation after acceptance is an admin override: the service applies it
// without consulting CanCancel, which is the caller's policy check.
func TestCancelBookingBypassesPolicy(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	id, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, id, booking.StatusAccepted, acceptPatch("driver-9")))

	require.NoError(t, svc.CancelBooking(ctx, id, "driver unavailable"))

	got, err := svc.GetBookingByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StatusCancelled, got.Status)
	assert.Equal(t, "driver unavailable", got.CancellationReason)
}

func TestAvailableBookingsExcludesAssigned(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	open, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	taken, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, taken, booking.StatusAccepted, acceptPatch("driver-9")))

	available, err := svc.AvailableBookings(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open, available[0].ID)
}

func TestBookingsByDriver(t *testing.T) {
	svc := newTestLifecycle(t)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, first, booking.StatusAccepted, acceptPatch("driver-9")))

	mine, err := svc.BookingsByDriver(ctx, "driver-9", ListOptions{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first, mine[0].ID)
}
