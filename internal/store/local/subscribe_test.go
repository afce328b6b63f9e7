package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// The local store has no push channel; subscriptions are serviced by the
// poll feed diffing snapshots behind the same interface.
func TestSubscribePollsForChanges(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	feed := realtime.NewPollFeed(s, 20*time.Millisecond, zap.NewNop())
	require.False(t, feed.SupportsPush())
	manager := realtime.NewManager(feed, zap.NewNop())
	t.Cleanup(manager.Close)

	bookings := NewCollection[booking.Booking](s, CollectionBookings, "Booking", manager)
	ctx := context.Background()

	id, err := bookings.Create(ctx, booking.Booking{
		CustomerID:    "cust-1",
		Status:        booking.StatusPending,
		PaymentStatus: booking.PaymentPending,
		TankerSize:    booking.TankerMedium,
		Quantity:      1,
	})
	require.NoError(t, err)

	events := make(chan realtime.Event, 8)
	unsubscribe, err := bookings.Subscribe("id=eq."+id, func(ev realtime.Event) {
		events <- ev
	}, func(err error) { t.Logf("feed error: %v", err) })
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, bookings.Update(ctx, id, store.Patch{"status": booking.StatusAccepted}))

	select {
	case ev := <-events:
		assert.Equal(t, CollectionBookings, ev.Table)
		assert.Equal(t, realtime.EventUpdate, ev.Type)
		assert.Equal(t, id, ev.Record["id"])
		assert.Equal(t, "accepted", ev.Record["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered by the poll loop")
	}

	require.NoError(t, bookings.Delete(ctx, id))
	select {
	case ev := <-events:
		assert.Equal(t, realtime.EventDelete, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no delete event delivered by the poll loop")
	}
}

func TestSubscribeWithoutManagerFails(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bookings := NewCollection[booking.Booking](s, CollectionBookings, "Booking", nil)
	_, err = bookings.Subscribe("", func(realtime.Event) {}, nil)
	require.Error(t, err)
}
