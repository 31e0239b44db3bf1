package records

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/logger"
)

const (
	// DefaultEventCapacity is the number of events kept before the oldest are evicted.
	DefaultEventCapacity = 100

	// DefaultRecent is how many events Recent returns when asked for n <= 0.
	DefaultRecent = 10
)

// EventLog is a bounded FIFO of event envelopes stored as one JSON array.
type EventLog struct {
	store    shared.KeyValueStore
	key      string
	capacity int
	logger   *slog.Logger

	mu sync.Mutex
}

var _ participant.EventLog = (*EventLog)(nil)

// NewEventLog creates a log under key. capacity <= 0 uses DefaultEventCapacity.
func NewEventLog(store shared.KeyValueStore, key string, capacity int, log *slog.Logger) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventLog{
		store:    store,
		key:      key,
		capacity: capacity,
		logger:   logger.OrDefault(log).With(logger.Component("event_log")),
	}
}

// Capacity returns the maximum number of retained events.
func (l *EventLog) Capacity() int {
	return l.capacity
}

// Append stores e, evicting the oldest entries beyond capacity. A corrupt
// stored log is replaced rather than blocking new events.
func (l *EventLog) Append(ctx context.Context, e participant.Event) error {
	env, err := participant.Encode(e)
	if err != nil {
		return shared.WrapError("eventlog", "Append", shared.ErrValidation, "encode failed", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		if !isCorrupt(err) {
			return err
		}
		l.logger.Warn("replacing corrupt event log", logger.StoreKey(l.key), logger.Err(err))
		entries = nil
	}

	entries = append(entries, env)
	if over := len(entries) - l.capacity; over > 0 {
		entries = entries[over:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return shared.WrapError("eventlog", "Append", shared.ErrPersistence, "encode failed", err)
	}
	if err := l.store.Set(ctx, l.key, string(data)); err != nil {
		return shared.WrapError("eventlog", "Append", shared.ErrPersistence, "write failed", err)
	}
	return nil
}

// Recent returns up to n of the latest events, oldest first. Entries that no
// longer decode are skipped.
func (l *EventLog) Recent(ctx context.Context, n int) ([]participant.Event, error) {
	if n <= 0 {
		n = DefaultRecent
	}

	l.mu.Lock()
	entries, err := l.load(ctx)
	l.mu.Unlock()
	if err != nil {
		if isCorrupt(err) {
			l.logger.Warn("event log unreadable, treating as empty", logger.StoreKey(l.key), logger.Err(err))
			return []participant.Event{}, nil
		}
		return nil, err
	}

	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	out := make([]participant.Event, 0, len(entries))
	for _, env := range entries {
		e, err := participant.Decode(env)
		if err != nil {
			l.logger.Warn("skipping undecodable event", logger.StoreKey(l.key), logger.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of stored envelopes.
func (l *EventLog) Len(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (l *EventLog) load(ctx context.Context) ([]participant.Envelope, error) {
	raw, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, shared.WrapError("eventlog", "Load", shared.ErrPersistence, "read failed", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var entries []participant.Envelope
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, shared.WrapError("eventlog", "Load", shared.ErrCorruptRecord, "undecodable log", err)
	}
	return entries, nil
}

func isCorrupt(err error) bool {
	return errors.Is(err, shared.ErrCorruptRecord)
}
