package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/store"
)

// PaymentResult is the outcome of a payment operation. Payment outcomes are
// business data, not exceptional control flow: the coordinator converts
// every failure, storage failures included, into this shape and never
// panics or returns an error.
type PaymentResult struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PaymentCoordinator records cash-on-delivery payments against bookings.
type PaymentCoordinator struct {
	bookings store.Collection[booking.Booking]
	logger   *zap.Logger
}

// NewPaymentCoordinator creates a coordinator over the given booking
// collection.
func NewPaymentCoordinator(bookings store.Collection[booking.Booking], logger *zap.Logger) *PaymentCoordinator {
	return &PaymentCoordinator{bookings: bookings, logger: logger}
}

// ProcessPayment records that cash collection has started for the booking.
// It writes a freshly generated payment identifier onto the booking and
// leaves paymentStatus at pending. Repeated calls succeed and overwrite the
// identifier with the latest value; callers relying on first-id-wins must
// guard externally.
func (p *PaymentCoordinator) ProcessPayment(ctx context.Context, bookingID string, amount float64) PaymentResult {
	if amount <= 0 {
		return PaymentResult{Success: false, Error: "invalid payment amount"}
	}

	bk, err := p.bookings.Get(ctx, bookingID)
	if err != nil {
		return p.failure("process", bookingID, err)
	}
	if bk == nil {
		return PaymentResult{Success: false, Error: "Booking not found"}
	}

	paymentID := newPaymentID("PAY", bookingID)
	patch := store.Patch{
		"paymentId": paymentID,
		"updatedAt": time.Now().UTC(),
	}
	if err := p.bookings.Update(ctx, bookingID, patch); err != nil {
		return p.failure("process", bookingID, err)
	}

	p.logger.Info("payment recorded",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", paymentID),
		zap.Float64("amount", amount),
	)
	return PaymentResult{Success: true, PaymentID: paymentID}
}

// ConfirmPayment marks the booking's cash payment as collected. It sets
// paymentStatus to completed and writes a confirmation identifier distinct
// from the one ProcessPayment generated.
func (p *PaymentCoordinator) ConfirmPayment(ctx context.Context, bookingID string) PaymentResult {
	bk, err := p.bookings.Get(ctx, bookingID)
	if err != nil {
		return p.failure("confirm", bookingID, err)
	}
	if bk == nil {
		return PaymentResult{Success: false, Error: "Booking not found"}
	}

	confirmationID := newPaymentID("CNF", bookingID)
	patch := store.Patch{
		"paymentId":     confirmationID,
		"paymentStatus": booking.PaymentCompleted,
		"updatedAt":     time.Now().UTC(),
	}
	if err := p.bookings.Update(ctx, bookingID, patch); err != nil {
		return p.failure("confirm", bookingID, err)
	}

	p.logger.Info("payment confirmed",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", confirmationID),
	)
	return PaymentResult{Success: true, PaymentID: confirmationID}
}

// ProcessOnlinePayment always fails: only cash on delivery is supported.
// This is a deliberate MVP limitation, not a bug.
func (p *PaymentCoordinator) ProcessOnlinePayment(_ context.Context, _ string, _ float64, _ string) PaymentResult {
	return PaymentResult{Success: false, Error: "online payments are not implemented"}
}

func (p *PaymentCoordinator) failure(op, bookingID string, err error) PaymentResult {
	p.logger.Warn("payment operation failed",
		zap.String("op", op),
		zap.String("booking_id", bookingID),
		zap.Error(err),
	)
	return PaymentResult{Success: false, Error: err.Error()}
}

const paymentSuffixChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newPaymentID builds an identifier embedding the booking id, the current
// time and a random suffix for uniqueness.
func newPaymentID(prefix, bookingID string) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(paymentSuffixChars))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is
			// broken; fall back to a fixed byte rather than aborting a
			// cash payment.
			suffix[i] = paymentSuffixChars[0]
			continue
		}
		suffix[i] = paymentSuffixChars[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%d-%s", prefix, bookingID, time.Now().UnixMilli(), suffix)
}
