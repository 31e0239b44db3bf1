// Package ledger owns the canonical participant collection. Every mutation is
// validated, persisted and then announced on the event bus, in that order.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// Publisher is the part of the event bus the ledger needs. Events are
// enqueued while the ledger lock is held and flushed after it is released, so
// handlers may call back into the ledger. Flush returns once the event with
// the given sequence number has reached every subscriber.
type Publisher interface {
	Enqueue(ctx context.Context, event participant.Event) (uint64, error)
	Flush(ctx context.Context, seq uint64)
}

// Config contains configuration for the Ledger.
type Config struct {
	// Clock supplies timestamps. Defaults to the real clock.
	Clock clockwork.Clock

	// OnlineThreshold is the idle time after which SweepPresence marks a
	// participant offline.
	OnlineThreshold time.Duration

	// NewID generates participant ids. Defaults to random UUIDs.
	NewID func() string

	// Logger for structured logging.
	Logger *slog.Logger
}

// Ledger is safe for concurrent use. Mutations are atomic: a failed write
// leaves both the stored and the in-memory collection untouched.
type Ledger struct {
	mu    sync.RWMutex
	byID  map[string]*participant.Participant
	order []string

	repo      participant.Repository
	publisher Publisher
	clock     clockwork.Clock
	threshold time.Duration
	newID     func() string
	logger    *slog.Logger
}

// New loads the stored collection and returns a ready ledger. Unreadable or
// corrupt storage starts an empty ledger and logs a warning.
func New(ctx context.Context, repo participant.Repository, publisher Publisher, cfg Config) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("ledger: repository is required")
	}
	if publisher == nil {
		return nil, errors.New("ledger: publisher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.OnlineThreshold <= 0 {
		cfg.OnlineThreshold = participant.DefaultOnlineThreshold
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	l := &Ledger{
		byID:      make(map[string]*participant.Participant),
		repo:      repo,
		publisher: publisher,
		clock:     cfg.Clock,
		threshold: cfg.OnlineThreshold,
		newID:     cfg.NewID,
		logger:    logger.OrDefault(cfg.Logger).With(logger.Component("ledger")),
	}

	stored, err := repo.Load(ctx)
	if err != nil {
		l.logger.Warn("could not load participants, starting empty", logger.Err(err))
		stored = nil
	}
	for i := range stored {
		p := stored[i]
		l.byID[p.ID] = &p
		l.order = append(l.order, p.ID)
	}

	l.logger.Info("ledger loaded", slog.Int("participants", len(l.order)))
	return l, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AddParticipant creates a participant named name and returns its id.
func (l *Ledger) AddParticipant(ctx context.Context, name string) (string, error) {
	now := l.now()
	p, err := participant.New(l.newID(), name, now)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	if _, exists := l.byID[p.ID]; exists {
		l.mu.Unlock()
		return "", shared.NewDomainError("participant", "Add", shared.ErrValidation, "duplicate id")
	}

	snapshot := append(l.snapshotLocked(), p.Clone())
	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.mu.Unlock()
		return "", err
	}

	l.byID[p.ID] = p
	l.order = append(l.order, p.ID)
	seq := l.enqueueLocked(ctx, participant.NewParticipantJoined(p.Clone(), now))
	l.mu.Unlock()
	l.publisher.Flush(ctx, seq)

	l.logger.Info("participant joined", logger.ParticipantID(p.ID), slog.String("name", p.Name))
	return p.ID, nil
}

// IncrementStreak adds one day to the participant's streak.
func (l *Ledger) IncrementStreak(ctx context.Context, id string) error {
	var unlocked []participant.Level
	updated, err := l.update(ctx, "Increment", id, func(p *participant.Participant, now time.Time) participant.Event {
		unlocked = p.Increment(now)
		return participant.NewParticipantUpdated(p.Clone(), now)
	})
	if err != nil {
		return err
	}

	for _, level := range unlocked {
		l.logger.Info("achievement unlocked",
			logger.ParticipantID(id),
			slog.String("level", string(level)),
			logger.Streak(updated.CurrentStreak),
		)
	}
	return nil
}

// ResetStreak records a failure: the streak goes to zero and the best record
// keeps the larger of the two.
func (l *Ledger) ResetStreak(ctx context.Context, id string) error {
	var previous int
	_, err := l.update(ctx, "Reset", id, func(p *participant.Participant, now time.Time) participant.Event {
		previous = p.Reset(now)
		return participant.NewParticipantUpdated(p.Clone(), now)
	})
	if err != nil {
		return err
	}

	l.logger.Info("streak reset", logger.ParticipantID(id), slog.Int("previous_streak", previous))
	return nil
}

// PingActivity refreshes the participant's activity time without emitting an
// event.
func (l *Ledger) PingActivity(ctx context.Context, id string) error {
	_, err := l.update(ctx, "Ping", id, func(p *participant.Participant, now time.Time) participant.Event {
		p.Touch(now)
		return nil
	})
	return err
}

// RemoveParticipant deletes the participant and emits participant_left with
// its final state marked offline.
func (l *Ledger) RemoveParticipant(ctx context.Context, id string) error {
	now := l.now()

	l.mu.Lock()
	current, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return notFound("Remove", id)
	}

	snapshot := make([]participant.Participant, 0, len(l.order)-1)
	for _, pid := range l.order {
		if pid != id {
			snapshot = append(snapshot, l.byID[pid].Clone())
		}
	}
	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.mu.Unlock()
		return err
	}

	final := current.Clone()
	final.MarkOffline()
	delete(l.byID, id)
	l.order = slices.DeleteFunc(l.order, func(pid string) bool { return pid == id })
	seq := l.enqueueLocked(ctx, participant.NewParticipantLeft(final, now))
	l.mu.Unlock()
	l.publisher.Flush(ctx, seq)

	l.logger.Info("participant left", logger.ParticipantID(id))
	return nil
}

// SweepPresence marks participants idle for longer than the online threshold
// as offline. When anything changed it persists once and emits a single
// stats_updated event. It returns the number of participants demoted.
func (l *Ledger) SweepPresence(ctx context.Context) (int, error) {
	now := l.now()

	l.mu.Lock()
	demoted := make(map[string]*participant.Participant)
	for _, id := range l.order {
		p := l.byID[id]
		if p.IsStale(now, l.threshold) {
			c := p.Clone()
			c.MarkOffline()
			demoted[id] = &c
		}
	}
	if len(demoted) == 0 {
		l.mu.Unlock()
		return 0, nil
	}

	snapshot := make([]participant.Participant, 0, len(l.order))
	for _, id := range l.order {
		if c, ok := demoted[id]; ok {
			snapshot = append(snapshot, c.Clone())
		} else {
			snapshot = append(snapshot, l.byID[id].Clone())
		}
	}
	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.mu.Unlock()
		return 0, err
	}

	for id, c := range demoted {
		l.byID[id] = c
	}
	seq := l.enqueueLocked(ctx, participant.NewStatsUpdated(participant.ComputeStats(snapshot), now))
	l.mu.Unlock()
	l.publisher.Flush(ctx, seq)

	l.logger.Debug("presence sweep demoted participants", logger.Changed(len(demoted)))
	return len(demoted), nil
}

// update applies fn to a copy of participant id, persists the collection with
// the copy in place and commits it. A nil event from fn means nothing is
// emitted.
func (l *Ledger) update(
	ctx context.Context,
	op, id string,
	fn func(p *participant.Participant, now time.Time) participant.Event,
) (participant.Participant, error) {
	now := l.now()

	l.mu.Lock()
	current, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return participant.Participant{}, notFound(op, id)
	}

	next := current.Clone()
	event := fn(&next, now)

	snapshot := make([]participant.Participant, 0, len(l.order))
	for _, pid := range l.order {
		if pid == id {
			snapshot = append(snapshot, next.Clone())
		} else {
			snapshot = append(snapshot, l.byID[pid].Clone())
		}
	}
	if err := l.repo.Save(ctx, snapshot); err != nil {
		l.mu.Unlock()
		return participant.Participant{}, err
	}

	l.byID[id] = &next
	var seq uint64
	if event != nil {
		seq = l.enqueueLocked(ctx, event)
	}
	result := next.Clone()
	l.mu.Unlock()

	l.publisher.Flush(ctx, seq)
	return result, nil
}

// enqueueLocked hands event to the publisher and returns its sequence number,
// zero when it was not accepted. The mutation is already committed, so a
// closed bus only costs the notification.
func (l *Ledger) enqueueLocked(ctx context.Context, event participant.Event) uint64 {
	seq, err := l.publisher.Enqueue(ctx, event)
	if err != nil {
		l.logger.Warn("event not published",
			logger.EventKind(string(event.Kind())),
			logger.ParticipantID(event.AggregateID()),
			logger.Err(err),
		)
		return 0
	}
	return seq
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Participants returns copies of all participants in insertion order.
func (l *Ledger) Participants() []participant.Participant {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Participant returns a copy of participant id.
func (l *Ledger) Participant(id string) (participant.Participant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.byID[id]
	if !ok {
		return participant.Participant{}, notFound("Get", id)
	}
	return p.Clone(), nil
}

// Stats aggregates the current collection.
func (l *Ledger) Stats() participant.Stats {
	return participant.ComputeStats(l.Participants())
}

// Leaderboard returns participants ordered by current streak, highest first.
func (l *Ledger) Leaderboard() []participant.Participant {
	return participant.Leaderboard(l.Participants())
}

// TopParticipant returns the participant with the highest current streak.
// Ties go to whoever joined first.
func (l *Ledger) TopParticipant() (participant.Participant, bool) {
	return participant.Top(l.Participants())
}

// OnlineThreshold returns the configured idle limit.
func (l *Ledger) OnlineThreshold() time.Duration {
	return l.threshold
}

func (l *Ledger) snapshotLocked() []participant.Participant {
	out := make([]participant.Participant, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id].Clone())
	}
	return out
}

func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC()
}

func notFound(op, id string) error {
	return shared.WrapError("participant", op, shared.ErrNotFound, "participant "+id+" not found", shared.ErrParticipantNotFound)
}
