// Package hub assembles one session: storage records, the ledger, the event
// bus and the presence sweep. Hub is the single entry point for callers; it
// replaces any process-wide state.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/streakhub/streak-hub/internal/application/ledger"
	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/internal/infrastructure/messaging"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/records"
	"github.com/streakhub/streak-hub/internal/infrastructure/scheduler"
	"github.com/streakhub/streak-hub/internal/infrastructure/scheduler/jobs"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// DefaultSweepInterval is how often online status is re-derived.
const DefaultSweepInterval = 30 * time.Second

// Options configures a Hub.
type Options struct {
	// Store backs both records. Required. The hub closes it on Close.
	Store shared.KeyValueStore

	// Prefix names the records; see records.KeysFor.
	Prefix string

	// EventCapacity bounds the persisted event log.
	EventCapacity int

	// Clock drives timestamps and the sweep schedule.
	Clock clockwork.Clock

	// OnlineThreshold is the idle time before a participant goes offline.
	OnlineThreshold time.Duration

	// SweepInterval is the presence sweep period.
	SweepInterval time.Duration

	// SweepTimeout bounds a single sweep run. Zero means unbounded.
	SweepTimeout time.Duration

	// Gate guards JoinWithSecret. Nil rejects every secret.
	Gate *Gate

	// Logger for structured logging.
	Logger *slog.Logger

	// LogEvents logs every delivered event at debug level.
	LogEvents bool
}

// Hub is one streak-tracking session.
type Hub struct {
	store     shared.KeyValueStore
	ledger    *ledger.Ledger
	bus       *messaging.EventBus
	scheduler *scheduler.Scheduler
	sweep     *jobs.PresenceSweepJob
	gate      *Gate
	interval  time.Duration
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New loads stored state and wires the session. The presence sweep does not
// run until Start.
func New(ctx context.Context, opts Options) (*Hub, error) {
	if opts.Store == nil {
		return nil, errors.New("hub: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	log := logger.OrDefault(opts.Logger)
	keys := records.KeysFor(opts.Prefix)

	busCfg := messaging.DefaultEventBusConfig()
	busCfg.Log = records.NewEventLog(opts.Store, keys.Events, opts.EventCapacity, log)
	busCfg.Logger = log
	bus := messaging.NewEventBus(busCfg)
	if opts.LogEvents {
		bus.Use(messaging.LoggingMiddleware(log.With(logger.Component("event_trace"))))
	}

	l, err := ledger.New(ctx, records.NewParticipantRepository(opts.Store, keys.Participants, log), bus, ledger.Config{
		Clock:           opts.Clock,
		OnlineThreshold: opts.OnlineThreshold,
		Logger:          log,
	})
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Clock = opts.Clock
	schedCfg.Logger = log
	sched, err := scheduler.NewScheduler(schedCfg)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	sweep := jobs.NewPresenceSweepJob(l, opts.Clock, opts.SweepTimeout)
	if err := sched.Register(sweep, opts.SweepInterval); err != nil {
		_ = sched.Stop()
		_ = bus.Close()
		return nil, err
	}

	return &Hub{
		store:     opts.Store,
		ledger:    l,
		bus:       bus,
		scheduler: sched,
		sweep:     sweep,
		gate:      opts.Gate,
		interval:  opts.SweepInterval,
		logger:    log.With(logger.Component("hub")),
	}, nil
}

// Start begins the periodic presence sweep.
func (h *Hub) Start() error {
	if err := h.scheduler.Start(); err != nil {
		return fmt.Errorf("start presence sweep: %w", err)
	}
	h.logger.Info("presence sweep started", slog.Duration("interval", h.interval))
	return nil
}

// Close stops the sweep, drops all subscribers and closes the store. It is
// safe to call more than once.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if err := h.scheduler.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerStopped) {
			errs = append(errs, err)
		}
		if err := h.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := h.store.Close(); err != nil {
			errs = append(errs, err)
		}
		h.closeErr = errors.Join(errs...)
		h.logger.Info("hub closed")
	})
	return h.closeErr
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AddParticipant adds a participant and returns its id.
func (h *Hub) AddParticipant(ctx context.Context, name string) (string, error) {
	return h.ledger.AddParticipant(ctx, name)
}

// JoinWithSecret adds a participant after checking the shared secret. The name
// is validated first.
func (h *Hub) JoinWithSecret(ctx context.Context, name, secret string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", shared.ErrEmptyName
	}
	if h.gate == nil {
		return "", shared.ErrWrongSecret
	}
	if err := h.gate.Check(secret); err != nil {
		h.logger.Warn("join rejected", slog.String("reason", "wrong secret"))
		return "", err
	}
	return h.ledger.AddParticipant(ctx, name)
}

// IncrementStreak adds one day to the participant's streak.
func (h *Hub) IncrementStreak(ctx context.Context, id string) error {
	return h.ledger.IncrementStreak(ctx, id)
}

// ResetStreak records a failure for the participant.
func (h *Hub) ResetStreak(ctx context.Context, id string) error {
	return h.ledger.ResetStreak(ctx, id)
}

// RemoveParticipant deletes the participant.
func (h *Hub) RemoveParticipant(ctx context.Context, id string) error {
	return h.ledger.RemoveParticipant(ctx, id)
}

// PingActivity keeps the participant online without emitting an event.
func (h *Hub) PingActivity(ctx context.Context, id string) error {
	return h.ledger.PingActivity(ctx, id)
}

// SweepNow runs the presence sweep immediately.
func (h *Hub) SweepNow(ctx context.Context) error {
	_, err := h.scheduler.RunNow(ctx, jobs.PresenceSweepName)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Participants returns all participants in join order.
func (h *Hub) Participants() []participant.Participant {
	return h.ledger.Participants()
}

// Participant returns one participant.
func (h *Hub) Participant(id string) (participant.Participant, error) {
	return h.ledger.Participant(id)
}

// Stats returns aggregate statistics.
func (h *Hub) Stats() participant.Stats {
	return h.ledger.Stats()
}

// Leaderboard returns participants ordered by current streak.
func (h *Hub) Leaderboard() []participant.Participant {
	return h.ledger.Leaderboard()
}

// TopParticipant returns the current leader, if any.
func (h *Hub) TopParticipant() (participant.Participant, bool) {
	return h.ledger.TopParticipant()
}

// RecentEvents returns up to n of the latest events, oldest first.
func (h *Hub) RecentEvents(ctx context.Context, n int) ([]participant.Event, error) {
	return h.bus.Recent(ctx, n)
}

// Subscribe registers handler for every event. Handlers that call back into
// the hub must pass on the ctx they receive. The returned function
// unsubscribes and may be called more than once.
func (h *Hub) Subscribe(handler messaging.Handler) (func(), error) {
	return h.bus.Subscribe(handler)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status summarizes the session for diagnostics.
type Status struct {
	Participants int
	Subscribers  int
	Events       messaging.EventBusMetricsSnapshot
	Sweeps       scheduler.MetricsSnapshot
	LastSweep    *jobs.PresenceSweepStats
}

// Status returns a point-in-time summary.
func (h *Hub) Status() Status {
	return Status{
		Participants: len(h.ledger.Participants()),
		Subscribers:  h.bus.SubscriberCount(),
		Events:       h.bus.Metrics().Snapshot(),
		Sweeps:       h.scheduler.GetMetrics().Snapshot(),
		LastSweep:    h.sweep.LastRunStats(),
	}
}
