package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFeed records opened channels and lets tests emit events into them.
type fakeFeed struct {
	mu      sync.Mutex
	opens   int
	closes  int
	emit    func(Event)
	onError func(error)
	openErr error
}

func (f *fakeFeed) Open(_ Descriptor, emit func(Event), onError func(error)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.emit = emit
	f.onError = onError
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closes++
		return nil
	}, nil
}

func (f *fakeFeed) SupportsPush() bool { return true }

func (f *fakeFeed) fire(ev Event) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(ev)
}

func TestSubscribeDeduplicatesChannelsByName(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, zap.NewNop())
	defer m.Close()

	desc := Descriptor{Name: "bookings|id=eq.b1", Table: "bookings"}

	var got1, got2 int
	unsub1, err := m.Subscribe(desc, func(Event) { got1++ })
	require.NoError(t, err)
	unsub2, err := m.Subscribe(desc, func(Event) { got2++ })
	require.NoError(t, err)

	assert.Equal(t, 1, feed.opens, "same name shares one feed")
	assert.Equal(t, 1, m.ChannelCount())

	feed.fire(Event{Table: "bookings", Type: EventUpdate})
	assert.Equal(t, 1, got1, "both handlers receive the event")
	assert.Equal(t, 1, got2)

	unsub1()
	unsub2()
}

func TestUnsubscribeRefCountsAndTearsDown(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, zap.NewNop())

	desc := Descriptor{Name: "bookings|all", Table: "bookings"}
	unsub1, err := m.Subscribe(desc, func(Event) {})
	require.NoError(t, err)
	unsub2, err := m.Subscribe(desc, func(Event) {})
	require.NoError(t, err)

	unsub1()
	assert.Equal(t, 1, m.ChannelCount(), "channel stays open while a subscriber remains")
	assert.Equal(t, 0, feed.closes)

	unsub2()
	assert.Equal(t, 0, m.ChannelCount(), "last unsubscribe closes the feed")
	assert.Equal(t, 1, feed.closes)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, zap.NewNop())

	desc := Descriptor{Name: "bookings|all", Table: "bookings"}
	unsub1, err := m.Subscribe(desc, func(Event) {})
	require.NoError(t, err)
	_, err = m.Subscribe(desc, func(Event) {})
	require.NoError(t, err)

	unsub1()
	unsub1()
	unsub1()
	assert.Equal(t, 1, m.ChannelCount(), "repeat calls must not release other subscribers")
}

func TestSubscribeOpenFailure(t *testing.T) {
	feed := &fakeFeed{openErr: errors.New("broker unreachable")}
	m := NewManager(feed, zap.NewNop())

	_, err := m.Subscribe(Descriptor{Name: "bookings|all"}, func(Event) {})
	require.Error(t, err)
	assert.Equal(t, 0, m.ChannelCount())
}

func TestFeedErrorRoutedToOnError(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, zap.NewNop())
	defer m.Close()

	var got error
	desc := Descriptor{
		Name:    "bookings|all",
		Table:   "bookings",
		OnError: func(err error) { got = err },
	}
	_, err := m.Subscribe(desc, func(Event) {})
	require.NoError(t, err)

	feed.onError(errors.New("stream reset"))
	require.Error(t, got)
	assert.Equal(t, "stream reset", got.Error())
	assert.Equal(t, 1, m.ChannelCount(), "errors do not tear the channel down")
}

func TestDescriptorMatches(t *testing.T) {
	desc := Descriptor{
		Table:  "bookings",
		Filter: map[string]string{"id": "b1"},
	}

	assert.True(t, desc.Matches(Event{Table: "bookings", Type: EventUpdate, Record: map[string]any{"id": "b1"}}))
	assert.False(t, desc.Matches(Event{Table: "bookings", Type: EventUpdate, Record: map[string]any{"id": "b2"}}))
	assert.False(t, desc.Matches(Event{Table: "users", Type: EventUpdate, Record: map[string]any{"id": "b1"}}))

	typed := Descriptor{Table: "bookings", Event: EventDelete}
	assert.True(t, typed.Matches(Event{Table: "bookings", Type: EventDelete}))
	assert.False(t, typed.Matches(Event{Table: "bookings", Type: EventInsert}))
}

func TestParseFilter(t *testing.T) {
	assert.Nil(t, ParseFilter(""))
	assert.Equal(t, map[string]string{"id": "b1"}, ParseFilter("id=eq.b1"))
	assert.Equal(t,
		map[string]string{"status": "pending", "customerId": "c1"},
		ParseFilter("status=eq.pending&customerId=eq.c1"),
	)
}
