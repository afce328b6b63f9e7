package realtime

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often PollFeed re-reads a collection. The local
// store has no native change stream, so subscriptions against it are
// serviced by diffing snapshots at this interval.
const DefaultPollInterval = 3 * time.Second

// Source exposes the current contents of one table for polling.
type Source interface {
	Snapshot(table string) ([]map[string]any, error)
}

// PollFeed substitutes a poll loop for a push change stream, behind the same
// Feed interface, so subscribers never know which strategy is active.
type PollFeed struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger
}

// NewPollFeed creates a PollFeed over source. A non-positive interval falls
// back to DefaultPollInterval.
func NewPollFeed(source Source, interval time.Duration, logger *zap.Logger) *PollFeed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollFeed{source: source, interval: interval, logger: logger}
}

// SupportsPush reports that this feed is a polling substitute.
func (f *PollFeed) SupportsPush() bool { return false }

// Open starts the poll loop for one channel. Each tick reads the table,
// diffs it against the previous snapshot by record id, and emits
// INSERT/UPDATE/DELETE events for what changed.
func (f *PollFeed) Open(desc Descriptor, emit func(Event), onError func(error)) (func() error, error) {
	prev, err := f.index(desc.Table)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			current, err := f.index(desc.Table)
			if err != nil {
				onError(err)
				continue
			}
			for id, rec := range current {
				old, existed := prev[id]
				switch {
				case !existed:
					f.deliver(desc, emit, Event{Table: desc.Table, Type: EventInsert, Record: rec.fields})
				case old.fingerprint != rec.fingerprint:
					f.deliver(desc, emit, Event{Table: desc.Table, Type: EventUpdate, Record: rec.fields})
				}
			}
			for id, old := range prev {
				if _, exists := current[id]; !exists {
					f.deliver(desc, emit, Event{Table: desc.Table, Type: EventDelete, Record: old.fields})
				}
			}
			prev = current
		}
	}()

	return func() error {
		close(stop)
		<-done
		return nil
	}, nil
}

func (f *PollFeed) deliver(desc Descriptor, emit func(Event), ev Event) {
	if desc.Matches(ev) {
		emit(ev)
	}
}

type snapshotRecord struct {
	fields      map[string]any
	fingerprint string
}

func (f *PollFeed) index(table string) (map[string]snapshotRecord, error) {
	rows, err := f.source.Snapshot(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]snapshotRecord, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		// json.Marshal sorts map keys, so the fingerprint is deterministic.
		raw, err := json.Marshal(row)
		if err != nil {
			f.logger.Warn("failed to fingerprint record", zap.String("table", table), zap.Error(err))
			continue
		}
		out[id] = snapshotRecord{fields: row, fingerprint: string(raw)}
	}
	return out, nil
}
