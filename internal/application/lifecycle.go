// Package application holds the services orchestrating the booking engine:
// the lifecycle state machine, the cash-on-delivery payment coordinator and
// the fleet service. Services delegate all storage to the persistence
// contract and let storage errors bubble unchanged; retries, if any, belong
// to the adapter.
package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// ListOptions controls pagination and sorting of booking queries. SortBy
// accepts createdAt, updatedAt and deliveredAt; the zero value sorts by
// createdAt descending.
type ListOptions struct {
	Limit  int
	Offset int
	SortBy string
	Order  store.Order
}

func (o ListOptions) query(where map[string]any) store.Query {
	sortBy := o.SortBy
	if sortBy == "" {
		sortBy = "createdAt"
	}
	order := o.Order
	if order == "" {
		order = store.Desc
	}
	return store.Query{
		Where:  where,
		SortBy: sortBy,
		Order:  order,
		Limit:  o.Limit,
		Offset: o.Offset,
	}
}

// BookingLifecycle owns every booking status and payment-status transition.
// It is constructed explicitly and injected into callers; tests supply
// isolated instances over their own adapter.
type BookingLifecycle struct {
	bookings store.Collection[booking.Booking]
	logger   *zap.Logger
}

// NewBookingLifecycle creates a lifecycle over the given booking collection.
func NewBookingLifecycle(bookings store.Collection[booking.Booking], logger *zap.Logger) *BookingLifecycle {
	return &BookingLifecycle{bookings: bookings, logger: logger}
}

// CreateBooking validates the draft and persists it as a new pending
// booking. The total price is recomputed as base plus distance charge; the
// draft's identifier and status fields are ignored. Returns the new
// identifier.
func (s *BookingLifecycle) CreateBooking(ctx context.Context, draft booking.Booking) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	draft.ID = ""
	draft.Status = booking.StatusPending
	draft.PaymentStatus = booking.PaymentPending
	draft.TotalPrice = draft.BasePrice + draft.DistanceCharge
	draft.CanCancel = true
	draft.DriverID = nil
	draft.PaymentID = ""
	draft.CancellationReason = ""
	draft.AcceptedAt = nil
	draft.DeliveredAt = nil
	draft.CreatedAt = now
	draft.UpdatedAt = now

	id, err := s.bookings.Create(ctx, draft)
	if err != nil {
		return "", err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", id),
		zap.String("customer_id", draft.CustomerID),
		zap.Float64("total_price", draft.TotalPrice),
	)
	return id, nil
}

// GetBookingByID returns the booking, or (nil, nil) if it does not exist.
func (s *BookingLifecycle) GetBookingByID(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookings.Get(ctx, id)
}

// UpdateStatus transitions the booking to newStatus. Transitions not in the
// state machine table are rejected with an InvalidStateError, including ones
// that skip intermediate states. extra is merged into the record alongside
// the transition; on accept it typically carries the driver identity and
// canCancel=false, which callers must supply. The state machine itself
// forces no canCancel change.
func (s *BookingLifecycle) UpdateStatus(ctx context.Context, id string, newStatus booking.Status, extra store.Patch) error {
	if !newStatus.IsValid() {
		return domain.NewValidationError("invalid booking status: " + string(newStatus))
	}

	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.NewNotFoundError("Booking", id)
	}
	if !current.Status.CanTransitionTo(newStatus) {
		return domain.NewInvalidStateError(string(current.Status), string(newStatus))
	}

	now := time.Now().UTC()
	patch := store.Patch{
		"status":    newStatus,
		"updatedAt": now,
	}
	switch newStatus {
	case booking.StatusAccepted:
		if current.AcceptedAt == nil {
			patch["acceptedAt"] = now
		}
	case booking.StatusDelivered:
		if current.DeliveredAt == nil {
			patch["deliveredAt"] = now
		}
	}
	for field, value := range extra {
		patch[field] = value
	}

	if err := s.bookings.Update(ctx, id, patch); err != nil {
		return err
	}

	s.logger.Info("booking status updated",
		zap.String("booking_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(newStatus)),
	)
	return nil
}

// CancelBooking cancels the booking and stores the reason. It deliberately
// does not consult CanCancel: that policy check belongs to the caller, and
// admin override flows skip it.
func (s *BookingLifecycle) CancelBooking(ctx context.Context, id, reason string) error {
	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.NewNotFoundError("Booking", id)
	}

	patch := store.Patch{
		"status":             booking.StatusCancelled,
		"cancellationReason": reason,
		"updatedAt":          time.Now().UTC(),
	}
	if err := s.bookings.Update(ctx, id, patch); err != nil {
		return err
	}

	s.logger.Info("booking cancelled",
		zap.String("booking_id", id),
		zap.String("reason", reason),
	)
	return nil
}

// BookingsByCustomer returns the customer's bookings.
func (s *BookingLifecycle) BookingsByCustomer(ctx context.Context, customerID string, opts ListOptions) ([]booking.Booking, error) {
	return s.bookings.Query(ctx, opts.query(map[string]any{"customerId": customerID}))
}

// BookingsByDriver returns the bookings assigned to a driver.
func (s *BookingLifecycle) BookingsByDriver(ctx context.Context, driverID string, opts ListOptions) ([]booking.Booking, error) {
	return s.bookings.Query(ctx, opts.query(map[string]any{"driverId": driverID}))
}

// AvailableBookings returns pending bookings with no driver assigned.
func (s *BookingLifecycle) AvailableBookings(ctx context.Context, opts ListOptions) ([]booking.Booking, error) {
	return s.bookings.Query(ctx, opts.query(map[string]any{
		"status":   booking.StatusPending,
		"driverId": store.Null,
	}))
}

// AllBookings returns every booking (admin).
func (s *BookingLifecycle) AllBookings(ctx context.Context, opts ListOptions) ([]booking.Booking, error) {
	return s.bookings.Query(ctx, opts.query(nil))
}

// Subscribe registers a live-update listener for one booking. The returned
// unsubscribe function is idempotent.
func (s *BookingLifecycle) Subscribe(id string, handler realtime.Handler, onError func(error)) (func(), error) {
	return s.bookings.Subscribe("id=eq."+id, handler, onError)
}
