package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/events"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// Bookings is the remote implementation of the booking collection.
type Bookings struct {
	db        *gorm.DB
	resolver  *IdentityResolver
	publisher *events.ChangePublisher
	manager   *realtime.Manager
	tr        translator
}

// NewBookings creates the remote booking collection. publisher and manager
// may be nil when no change feed is wired (the migration tool runs without
// one).
func NewBookings(db *gorm.DB, resolver *IdentityResolver, publisher *events.ChangePublisher, manager *realtime.Manager) *Bookings {
	return &Bookings{
		db:        db,
		resolver:  resolver,
		publisher: publisher,
		manager:   manager,
		tr: translator{
			resolver:   resolver,
			userFK:     map[string]bool{"customerId": true, "driverId": true, "agencyId": true},
			jsonFields: map[string]bool{"deliveryAddress": true},
		},
	}
}

var _ store.Collection[booking.Booking] = (*Bookings)(nil)

// Create inserts the booking, minting an identifier if it carries none.
func (r *Bookings) Create(ctx context.Context, rec booking.Booking) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	model, err := r.toModel(ctx, &rec)
	if err != nil {
		return "", err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return "", translateError("failed to create booking", err)
	}
	r.publisher.Publish(ctx, "bookings", realtime.EventInsert, recordSnapshot(rec))
	return rec.ID, nil
}

// Get returns the booking with the given id, or (nil, nil) if absent.
func (r *Bookings) Get(ctx context.Context, id string) (*booking.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError("failed to get booking", err)
	}
	return r.toDomain(ctx, &model)
}

// Update merges the patch into the stored row, translating field names and
// resolving user foreign keys. Fails with a NotFoundError if absent.
func (r *Bookings) Update(ctx context.Context, id string, patch store.Patch) error {
	cols, err := r.tr.patchColumns(ctx, patch)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&BookingModel{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return translateError("failed to update booking", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Booking", id)
	}

	if updated, err := r.Get(ctx, id); err == nil && updated != nil {
		r.publisher.Publish(ctx, "bookings", realtime.EventUpdate, recordSnapshot(updated))
	}
	return nil
}

// Delete removes the booking; deleting an absent row is a no-op.
func (r *Bookings) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&BookingModel{})
	if result.Error != nil {
		return translateError("failed to delete booking", result.Error)
	}
	if result.RowsAffected > 0 {
		r.publisher.Publish(ctx, "bookings", realtime.EventDelete, map[string]any{"id": id})
	}
	return nil
}

// Query returns the bookings matching q.
func (r *Bookings) Query(ctx context.Context, q store.Query) ([]booking.Booking, error) {
	tx := r.db.WithContext(ctx).Model(&BookingModel{})
	tx, err := r.tr.applyWhere(ctx, tx, q.Where)
	if err != nil {
		return nil, err
	}
	tx = applyOrder(tx, q)

	var models []BookingModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, translateError("failed to query bookings", err)
	}

	out := make([]booking.Booking, 0, len(models))
	for i := range models {
		rec, err := r.toDomain(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Subscribe registers a live-update listener through the subscription
// manager, fed by the backend's change stream.
func (r *Bookings) Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error) {
	if r.manager == nil {
		return nil, fmt.Errorf("bookings collection has no subscription manager")
	}
	desc := realtime.Descriptor{
		Name:    "bookings|" + filterKey,
		Table:   "bookings",
		Filter:  realtime.ParseFilter(filterKey),
		OnError: onError,
	}
	return r.manager.Subscribe(desc, handler)
}

// --- Conversion helpers ---

func (r *Bookings) toModel(ctx context.Context, b *booking.Booking) (*BookingModel, error) {
	customerID, err := r.resolver.RowID(ctx, b.CustomerID)
	if err != nil {
		return nil, err
	}

	var driverID, agencyID *string
	if b.DriverID != nil {
		rowID, err := r.resolver.RowID(ctx, *b.DriverID)
		if err != nil {
			return nil, err
		}
		driverID = &rowID
	}
	if b.AgencyID != nil {
		rowID, err := r.resolver.RowID(ctx, *b.AgencyID)
		if err != nil {
			return nil, err
		}
		agencyID = &rowID
	}

	address, err := json.Marshal(b.DeliveryAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery address: %w", err)
	}

	return &BookingModel{
		ID:                 b.ID,
		CustomerID:         customerID,
		DriverID:           driverID,
		AgencyID:           agencyID,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		TankerSize:         string(b.TankerSize),
		Quantity:           b.Quantity,
		BasePrice:          b.BasePrice,
		DistanceCharge:     b.DistanceCharge,
		TotalPrice:         b.TotalPrice,
		DeliveryAddress:    address,
		ScheduledFor:       b.ScheduledFor,
		IsImmediate:        b.IsImmediate,
		PaymentID:          b.PaymentID,
		CancellationReason: b.CancellationReason,
		CanCancel:          b.CanCancel,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		AcceptedAt:         b.AcceptedAt,
		DeliveredAt:        b.DeliveredAt,
	}, nil
}

func (r *Bookings) toDomain(ctx context.Context, m *BookingModel) (*booking.Booking, error) {
	customerID, err := r.resolver.AuthID(ctx, m.CustomerID)
	if err != nil {
		return nil, err
	}

	var driverID, agencyID *string
	if m.DriverID != nil {
		authID, err := r.resolver.AuthID(ctx, *m.DriverID)
		if err != nil {
			return nil, err
		}
		driverID = &authID
	}
	if m.AgencyID != nil {
		authID, err := r.resolver.AuthID(ctx, *m.AgencyID)
		if err != nil {
			return nil, err
		}
		agencyID = &authID
	}

	var address booking.DeliveryAddress
	if len(m.DeliveryAddress) > 0 {
		if err := json.Unmarshal(m.DeliveryAddress, &address); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delivery address: %w", err)
		}
	}

	status, err := booking.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return &booking.Booking{
		ID:                 m.ID,
		CustomerID:         customerID,
		DriverID:           driverID,
		AgencyID:           agencyID,
		Status:             status,
		PaymentStatus:      booking.PaymentStatus(m.PaymentStatus),
		TankerSize:         booking.TankerSize(m.TankerSize),
		Quantity:           m.Quantity,
		BasePrice:          m.BasePrice,
		DistanceCharge:     m.DistanceCharge,
		TotalPrice:         m.TotalPrice,
		DeliveryAddress:    address,
		ScheduledFor:       m.ScheduledFor,
		IsImmediate:        m.IsImmediate,
		PaymentID:          m.PaymentID,
		CancellationReason: m.CancellationReason,
		CanCancel:          m.CanCancel,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		AcceptedAt:         m.AcceptedAt,
		DeliveredAt:        m.DeliveredAt,
	}, nil
}
