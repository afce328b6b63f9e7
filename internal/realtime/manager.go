// Package realtime manages live change-notification channels. A channel is
// one open feed against a backend's change stream for a (table, filter)
// pair; the manager deduplicates channels by name, reference-counts
// subscribers, and fans a single underlying notification out to every
// registered handler.
package realtime

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// EventType classifies a change event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one change notification. Record is the camelCase snapshot of the
// row after the change (the pre-delete snapshot for deletes). Delivery is
// at-least-once; consumers must tolerate duplicates of the same logical
// change.
type Event struct {
	Table  string         `json:"table"`
	Type   EventType      `json:"type"`
	Record map[string]any `json:"record"`
}

// Handler receives change events for one subscription.
type Handler func(Event)

// Descriptor identifies the channel a subscriber wants. Two descriptors with
// the same Name share one underlying feed. OnError is invoked on feed
// failures instead of throwing into the handler; the channel is not torn
// down automatically.
type Descriptor struct {
	Name    string
	Table   string
	Event   EventType         // empty matches all event types
	Filter  map[string]string // equality conditions on Record fields
	OnError func(error)
}

// Matches reports whether the event belongs to this descriptor's channel.
func (d Descriptor) Matches(ev Event) bool {
	if d.Table != "" && ev.Table != d.Table {
		return false
	}
	if d.Event != "" && ev.Type != d.Event {
		return false
	}
	for field, want := range d.Filter {
		got, ok := ev.Record[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// Feed opens raw change streams against one backend. SupportsPush reports
// whether the backend emits changes natively; when false the feed is a
// polling substitute behind the same interface.
type Feed interface {
	Open(desc Descriptor, emit func(Event), onError func(error)) (close func() error, err error)
	SupportsPush() bool
}

type channel struct {
	refs     int
	closeFn  func() error
	handlers map[int]Handler
	nextID   int
}

// Manager deduplicates and reference-counts channels over a single Feed.
type Manager struct {
	mu       sync.Mutex
	feed     Feed
	channels map[string]*channel
	logger   *zap.Logger
}

// NewManager creates a Manager over the given feed.
func NewManager(feed Feed, logger *zap.Logger) *Manager {
	return &Manager{
		feed:     feed,
		channels: make(map[string]*channel),
		logger:   logger,
	}
}

// Subscribe attaches handler to the channel named by desc, opening the
// underlying feed only if no channel with that name exists yet. The returned
// unsubscribe function is safe to call multiple times; calls after the first
// are no-ops.
func (m *Manager) Subscribe(desc Descriptor, handler Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[desc.Name]
	if !ok {
		ch = &channel{handlers: make(map[int]Handler)}
		name := desc.Name
		emit := func(ev Event) { m.dispatch(name, ev) }
		onError := func(err error) {
			if desc.OnError != nil {
				desc.OnError(err)
				return
			}
			m.logger.Warn("channel error",
				zap.String("channel", name),
				zap.Error(err),
			)
		}
		closeFn, err := m.feed.Open(desc, emit, onError)
		if err != nil {
			return nil, fmt.Errorf("failed to open channel %s: %w", desc.Name, err)
		}
		ch.closeFn = closeFn
		m.channels[desc.Name] = ch
		m.logger.Debug("channel opened",
			zap.String("channel", desc.Name),
			zap.Bool("push", m.feed.SupportsPush()),
		)
	}

	id := ch.nextID
	ch.nextID++
	ch.handlers[id] = handler
	ch.refs++

	done := false
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if done {
			return
		}
		done = true
		m.release(desc.Name, id)
	}, nil
}

// ChannelCount returns the number of open channels.
func (m *Manager) ChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Close tears down every open channel regardless of reference counts.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ch := range m.channels {
		if ch.closeFn != nil {
			if err := ch.closeFn(); err != nil {
				m.logger.Warn("failed to close channel",
					zap.String("channel", name),
					zap.Error(err),
				)
			}
		}
		delete(m.channels, name)
	}
}

func (m *Manager) dispatch(name string, ev Event) {
	m.mu.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(ch.handlers))
	for _, h := range ch.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// release must be called with the mutex held.
func (m *Manager) release(name string, handlerID int) {
	ch, ok := m.channels[name]
	if !ok {
		return
	}
	delete(ch.handlers, handlerID)
	ch.refs--
	if ch.refs > 0 {
		return
	}
	delete(m.channels, name)
	if ch.closeFn != nil {
		if err := ch.closeFn(); err != nil {
			m.logger.Warn("failed to close channel",
				zap.String("channel", name),
				zap.Error(err),
			)
		}
	}
}

// ParseFilter parses a filter key of the form "field=eq.value" (multiple
// conditions joined by "&") into descriptor filter conditions. An empty key
// matches every record of the table.
func ParseFilter(key string) map[string]string {
	if key == "" {
		return nil
	}
	filter := make(map[string]string)
	for _, part := range strings.Split(key, "&") {
		field, rest, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if value, ok := strings.CutPrefix(rest, "eq."); ok {
			filter[field] = value
		}
	}
	return filter
}
