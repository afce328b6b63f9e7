// Package booking defines the water-tanker booking record and its status
// state machine.
package booking

import (
	"time"

	"github.com/tankerflow/booking-engine/internal/domain"
)

// TankerSize is the tanker capacity class a customer orders.
type TankerSize string

const (
	TankerSmall  TankerSize = "small"
	TankerMedium TankerSize = "medium"
	TankerLarge  TankerSize = "large"
)

// IsValid returns true if the tanker size is recognized.
func (t TankerSize) IsValid() bool {
	switch t {
	case TankerSmall, TankerMedium, TankerLarge:
		return true
	}
	return false
}

// DeliveryAddress is the immutable address snapshot taken when the booking is
// created. It is stored as a nested JSON object, never normalized.
type DeliveryAddress struct {
	Label     string  `json:"label"`
	Line1     string  `json:"line1"`
	Line2     string  `json:"line2,omitempty"`
	City      string  `json:"city"`
	Pincode   string  `json:"pincode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Booking is the central transactional record of the engine.
//
// CanCancel is true only while the booking is pending with no driver
// assigned; it is cleared when a driver accepts and never set again.
// AcceptedAt and DeliveredAt are written exactly once, on the corresponding
// transition, and never cleared.
type Booking struct {
	ID                 string          `json:"id"`
	CustomerID         string          `json:"customerId"`
	DriverID           *string         `json:"driverId,omitempty"`
	AgencyID           *string         `json:"agencyId,omitempty"`
	Status             Status          `json:"status"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus"`
	TankerSize         TankerSize      `json:"tankerSize"`
	Quantity           int             `json:"quantity"`
	BasePrice          float64         `json:"basePrice"`
	DistanceCharge     float64         `json:"distanceCharge"`
	TotalPrice         float64         `json:"totalPrice"`
	DeliveryAddress    DeliveryAddress `json:"deliveryAddress"`
	ScheduledFor       *time.Time      `json:"scheduledFor,omitempty"`
	IsImmediate        bool            `json:"isImmediate"`
	PaymentID          string          `json:"paymentId,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	CanCancel          bool            `json:"canCancel"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	AcceptedAt         *time.Time      `json:"acceptedAt,omitempty"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty"`
}

// Validate checks the fields required before a booking may be created.
// TotalPrice is recomputed by the lifecycle at creation, so only the inputs
// are checked here.
func (b *Booking) Validate() error {
	if b.CustomerID == "" {
		return domain.NewValidationError("customerId is required")
	}
	if b.BasePrice < 0 {
		return domain.NewValidationError("basePrice cannot be negative")
	}
	if b.DistanceCharge < 0 {
		return domain.NewValidationError("distanceCharge cannot be negative")
	}
	if !b.TankerSize.IsValid() {
		return domain.NewValidationError("invalid tanker size: " + string(b.TankerSize))
	}
	if b.Quantity <= 0 {
		return domain.NewValidationError("quantity must be positive")
	}
	return nil
}
