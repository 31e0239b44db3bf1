package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/internal/infrastructure/messaging"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/memory"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/records"
	"github.com/streakhub/streak-hub/pkg/logger"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// flakyRepo fails Save on demand.
type flakyRepo struct {
	participant.Repository
	fail bool
}

func (r *flakyRepo) Save(ctx context.Context, ps []participant.Participant) error {
	if r.fail {
		return shared.WrapError("participant", "Save", shared.ErrPersistence, "write failed", errors.New("disk full"))
	}
	return r.Repository.Save(ctx, ps)
}

type fixture struct {
	ledger *Ledger
	bus    *messaging.EventBus
	store  *memory.Store
	repo   *flakyRepo
	clock  *clockwork.FakeClock
	events []participant.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore())
}

func newFixtureWithStore(t *testing.T, store *memory.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	keys := records.KeysFor("")

	f := &fixture{
		store: store,
		clock: clockwork.NewFakeClockAt(t0),
		repo:  &flakyRepo{Repository: records.NewParticipantRepository(store, keys.Participants, logger.Discard())},
	}
	f.bus = messaging.NewEventBus(messaging.EventBusConfig{
		Log:    records.NewEventLog(store, keys.Events, 0, logger.Discard()),
		Logger: logger.Discard(),
	})
	t.Cleanup(func() { _ = f.bus.Close() })

	_, err := f.bus.Subscribe(func(_ context.Context, e participant.Event) error {
		f.events = append(f.events, e)
		return nil
	})
	require.NoError(t, err)

	seq := 0
	f.ledger, err = New(ctx, f.repo, f.bus, Config{
		Clock:  f.clock,
		Logger: logger.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("p%d", seq)
		},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) add(t *testing.T, name string) string {
	t.Helper()
	id, err := f.ledger.AddParticipant(context.Background(), name)
	require.NoError(t, err)
	return id
}

func (f *fixture) kinds() []participant.Kind {
	out := make([]participant.Kind, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ADD
// ══════════════════════════════════════════════════════════════════════════════

func TestAddParticipant(t *testing.T) {
	f := newFixture(t)

	id := f.add(t, "  Valera  ")
	assert.Equal(t, "p1", id)

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, "Valera", p.Name)
	assert.Zero(t, p.CurrentStreak)
	assert.Zero(t, p.BestRecord)
	assert.Zero(t, p.TotalFailures)
	assert.True(t, p.IsOnline)
	assert.Equal(t, t0, p.JoinDate)
	assert.Equal(t, t0, p.LastActivity)

	require.Len(t, f.events, 1)
	joined, ok := f.events[0].(participant.ParticipantJoined)
	require.True(t, ok)
	assert.Equal(t, id, joined.Participant.ID)
	assert.Equal(t, t0, joined.OccurredAt())

	raw, ok, err := f.store.Get(context.Background(), "valera_challenge_participants")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"name":"Valera"`)
}

func TestAddParticipant_RejectsBlankName(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := f.ledger.AddParticipant(context.Background(), name)
		assert.True(t, shared.IsValidation(err), "name %q", name)
	}

	assert.Empty(t, f.events)
	assert.Empty(t, f.ledger.Participants())
	assert.Zero(t, f.store.Keys())
}

// ══════════════════════════════════════════════════════════════════════════════
// INCREMENT / RESET
// ══════════════════════════════════════════════════════════════════════════════

func TestIncrementStreak_NTimes(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "Valera")

	const n = 9
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Hour)
		require.NoError(t, f.ledger.IncrementStreak(context.Background(), id))
	}

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, n, p.CurrentStreak)
	assert.Equal(t, t0.Add(n*time.Hour), p.LastActivity)
	assert.Equal(t, []participant.Level{participant.LevelBronze}, p.Achievements)

	require.Len(t, f.events, n+1)
	last, ok := f.events[n].(participant.ParticipantUpdated)
	require.True(t, ok)
	assert.Equal(t, n, last.Participant.CurrentStreak)
}

func TestResetStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.add(t, "Valera")

	for i := 0; i < 5; i++ {
		require.NoError(t, f.ledger.IncrementStreak(ctx, id))
	}
	f.clock.Advance(time.Minute)
	require.NoError(t, f.ledger.ResetStreak(ctx, id))

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Zero(t, p.CurrentStreak)
	assert.Equal(t, 5, p.BestRecord)
	assert.Equal(t, 1, p.TotalFailures)
	require.NotNil(t, p.LastResetAt)
	assert.Equal(t, t0.Add(time.Minute), *p.LastResetAt)

	// A shorter run never lowers the best record.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.ledger.IncrementStreak(ctx, id))
	}
	require.NoError(t, f.ledger.ResetStreak(ctx, id))

	p, err = f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, 5, p.BestRecord)
	assert.Equal(t, 2, p.TotalFailures)

	// Resetting at zero still counts as a failure.
	require.NoError(t, f.ledger.ResetStreak(ctx, id))
	p, err = f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TotalFailures)
	assert.Equal(t, 5, p.BestRecord)
}

func TestUnknownID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "Valera")
	f.events = nil

	ops := map[string]func() error{
		"increment": func() error { return f.ledger.IncrementStreak(ctx, "ghost") },
		"reset":     func() error { return f.ledger.ResetStreak(ctx, "ghost") },
		"remove":    func() error { return f.ledger.RemoveParticipant(ctx, "ghost") },
		"ping":      func() error { return f.ledger.PingActivity(ctx, "ghost") },
		"get": func() error {
			_, err := f.ledger.Participant("ghost")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.True(t, shared.IsNotFound(err))
			assert.ErrorIs(t, err, shared.ErrParticipantNotFound)
		})
	}

	assert.Empty(t, f.events)
	assert.Len(t, f.ledger.Participants(), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOVE / PING
// ══════════════════════════════════════════════════════════════════════════════

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "Alice")
	b := f.add(t, "Bob")

	require.NoError(t, f.ledger.RemoveParticipant(ctx, a))

	ps := f.ledger.Participants()
	require.Len(t, ps, 1)
	assert.Equal(t, b, ps[0].ID)

	left, ok := f.events[len(f.events)-1].(participant.ParticipantLeft)
	require.True(t, ok)
	assert.Equal(t, a, left.Participant.ID)
	assert.False(t, left.Participant.IsOnline)

	reloaded := newFixtureWithStore(t, f.store)
	assert.Len(t, reloaded.ledger.Participants(), 1)
}

func TestPingActivity(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "Valera")
	f.events = nil

	f.clock.Advance(3 * time.Minute)
	require.NoError(t, f.ledger.PingActivity(context.Background(), id))

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Minute), p.LastActivity)
	assert.Zero(t, p.CurrentStreak)
	assert.Empty(t, f.events)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

func TestWriteFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.add(t, "Valera")
	require.NoError(t, f.ledger.IncrementStreak(ctx, id))
	f.events = nil

	f.repo.fail = true

	err := f.ledger.IncrementStreak(ctx, id)
	assert.True(t, shared.IsPersistence(err))
	err = f.ledger.ResetStreak(ctx, id)
	assert.True(t, shared.IsPersistence(err))
	_, err = f.ledger.AddParticipant(ctx, "Bob")
	assert.True(t, shared.IsPersistence(err))
	err = f.ledger.RemoveParticipant(ctx, id)
	assert.True(t, shared.IsPersistence(err))

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Zero(t, p.TotalFailures)
	assert.Len(t, f.ledger.Participants(), 1)
	assert.Empty(t, f.events)
}

func TestReloadFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "Alice")
	f.add(t, "Bob")
	require.NoError(t, f.ledger.IncrementStreak(ctx, a))

	again := newFixtureWithStore(t, f.store)
	ps := again.ledger.Participants()
	require.Len(t, ps, 2)
	assert.Equal(t, "Alice", ps[0].Name)
	assert.Equal(t, 1, ps[0].CurrentStreak)
	assert.Equal(t, "Bob", ps[1].Name)

	events, err := again.bus.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Set(context.Background(), "valera_challenge_participants", "][garbage"))

	f := newFixtureWithStore(t, store)
	assert.Empty(t, f.ledger.Participants())
	assert.Equal(t, participant.Stats{}, f.ledger.Stats())
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE
// ══════════════════════════════════════════════════════════════════════════════

func TestSweepPresence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.add(t, "Valera")
	f.events = nil

	f.clock.Advance(4 * time.Minute)
	changed, err := f.ledger.SweepPresence(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Empty(t, f.events)

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)

	f.clock.Advance(2 * time.Minute)
	changed, err = f.ledger.SweepPresence(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	p, err = f.ledger.Participant(id)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)

	require.Len(t, f.events, 1)
	su, ok := f.events[0].(participant.StatsUpdated)
	require.True(t, ok)
	assert.Equal(t, 1, su.Stats.TotalParticipants)
	assert.Zero(t, su.Stats.ActiveParticipants)

	// Nothing left to demote.
	changed, err = f.ledger.SweepPresence(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Len(t, f.events, 1)
}

func TestActivityBringsParticipantBackOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.add(t, "Valera")

	f.clock.Advance(10 * time.Minute)
	_, err := f.ledger.SweepPresence(ctx)
	require.NoError(t, err)

	require.NoError(t, f.ledger.PingActivity(ctx, id))
	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Equal(t, 1, f.ledger.Stats().ActiveParticipants)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func TestLeaderboardAndTop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, ok := f.ledger.TopParticipant()
	assert.False(t, ok)

	a := f.add(t, "Alice")
	b := f.add(t, "Bob")
	c := f.add(t, "Carol")
	for i := 0; i < 3; i++ {
		require.NoError(t, f.ledger.IncrementStreak(ctx, b))
		require.NoError(t, f.ledger.IncrementStreak(ctx, c))
	}
	require.NoError(t, f.ledger.IncrementStreak(ctx, a))

	top, ok := f.ledger.TopParticipant()
	require.True(t, ok)
	assert.Equal(t, b, top.ID)

	board := f.ledger.Leaderboard()
	ids := []string{board[0].ID, board[1].ID, board[2].ID}
	assert.Equal(t, []string{b, c, a}, ids)

	stats := f.ledger.Stats()
	assert.Equal(t, 3, stats.TotalParticipants)
	assert.Equal(t, 3, stats.TopStreak)
	assert.Equal(t, 2, stats.AvgStreak)
}

func TestReturnedParticipantsAreCopies(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "Valera")

	ps := f.ledger.Participants()
	ps[0].CurrentStreak = 99
	ps[0].Achievements = append(ps[0].Achievements, participant.LevelGod)

	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Zero(t, p.CurrentStreak)
	assert.Empty(t, p.Achievements)
}

func TestHandlerMayCallBackIntoLedger(t *testing.T) {
	f := newFixture(t)

	_, err := f.bus.Subscribe(func(ctx context.Context, e participant.Event) error {
		if joined, ok := e.(participant.ParticipantJoined); ok {
			return f.ledger.IncrementStreak(ctx, joined.Participant.ID)
		}
		return nil
	})
	require.NoError(t, err)

	id := f.add(t, "Valera")

	assert.Equal(t, []participant.Kind{participant.KindParticipantJoined, participant.KindParticipantUpdated}, f.kinds())
	p, err := f.ledger.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentStreak)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), nil, messaging.NewEventBus(messaging.EventBusConfig{}), Config{})
	assert.Error(t, err)

	repo := records.NewParticipantRepository(memory.NewStore(), "p", logger.Discard())
	_, err = New(context.Background(), repo, nil, Config{})
	assert.Error(t, err)
}

func TestMutationReturnsAfterItsEventIsDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.add(t, "Idle")
	f.clock.Advance(4 * time.Minute)
	fresh := f.add(t, "Fresh")
	f.clock.Advance(2 * time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []participant.Kind
	_, err := f.bus.Subscribe(func(_ context.Context, e participant.Event) error {
		mu.Lock()
		delivered = append(delivered, e.Kind())
		mu.Unlock()
		if e.Kind() == participant.KindStatsUpdated {
			close(entered)
			<-release
		}
		return nil
	})
	require.NoError(t, err)

	sweepDone := make(chan error, 1)
	go func() {
		_, err := f.ledger.SweepPresence(ctx)
		sweepDone <- err
	}()
	<-entered

	incDone := make(chan []participant.Kind, 1)
	go func() {
		assert.NoError(t, f.ledger.IncrementStreak(ctx, fresh))
		mu.Lock()
		incDone <- slices.Clone(delivered)
		mu.Unlock()
	}()

	select {
	case <-incDone:
		t.Fatal("IncrementStreak returned before its event was delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, []participant.Kind{participant.KindStatsUpdated, participant.KindParticipantUpdated}, <-incDone)
	require.NoError(t, <-sweepDone)
}
