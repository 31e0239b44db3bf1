package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakhub/streak-hub/internal/application/ledger"
	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/infrastructure/messaging"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/memory"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/records"
	"github.com/streakhub/streak-hub/internal/infrastructure/scheduler"
	"github.com/streakhub/streak-hub/pkg/logger"
)

type sweeperFunc func(ctx context.Context) (int, error)

func (f sweeperFunc) SweepPresence(ctx context.Context) (int, error) { return f(ctx) }

func TestPresenceSweepJob_RecordsStats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	job := NewPresenceSweepJob(sweeperFunc(func(context.Context) (int, error) { return 3, nil }), clock, 0)

	assert.Nil(t, job.LastRunStats())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Demoted)
	assert.Equal(t, clock.Now(), stats.StartedAt)
	assert.Equal(t, PresenceSweepName, job.Name())
	assert.NotEmpty(t, job.Description())
}

func TestPresenceSweepJob_PropagatesError(t *testing.T) {
	boom := errors.New("store down")
	job := NewPresenceSweepJob(sweeperFunc(func(context.Context) (int, error) { return 0, boom }), nil, time.Second)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, job.LastRunStats())
}

func TestPresenceSweepJob_AppliesTimeout(t *testing.T) {
	job := NewPresenceSweepJob(sweeperFunc(func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return 0, nil
	}), nil, time.Minute)

	require.NoError(t, job.Run(context.Background()))
}

// TestPresenceSweep_Scheduled drives the real ledger through the scheduler
// with a fake clock: online at +4m, offline after the sweep past +5m.
func TestPresenceSweep_Scheduled(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := memory.NewStore()
	keys := records.KeysFor("")

	bus := messaging.NewEventBus(messaging.EventBusConfig{
		Log:    records.NewEventLog(store, keys.Events, 0, logger.Discard()),
		Logger: logger.Discard(),
	})
	defer func() { _ = bus.Close() }()

	statsEvents := make(chan participant.StatsUpdated, 4)
	_, err := bus.Subscribe(func(_ context.Context, e participant.Event) error {
		if su, ok := e.(participant.StatsUpdated); ok {
			statsEvents <- su
		}
		return nil
	})
	require.NoError(t, err)

	l, err := ledger.New(ctx, records.NewParticipantRepository(store, keys.Participants, logger.Discard()), bus, ledger.Config{
		Clock:  clock,
		Logger: logger.Discard(),
	})
	require.NoError(t, err)

	id, err := l.AddParticipant(ctx, "Valera")
	require.NoError(t, err)

	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfig{Clock: clock, Logger: logger.Discard()})
	require.NoError(t, err)
	defer func() { _ = sched.Stop() }()

	job := NewPresenceSweepJob(l, clock, 0)
	require.NoError(t, sched.Register(job, 30*time.Second))

	clock.Advance(4 * time.Minute)
	_, err = sched.RunNow(ctx, PresenceSweepName)
	require.NoError(t, err)

	p, err := l.Participant(id)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Empty(t, statsEvents)

	require.NoError(t, sched.Start())
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool {
		clock.Advance(30 * time.Second)
		p, err := l.Participant(id)
		return err == nil && !p.IsOnline
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case su := <-statsEvents:
		assert.Zero(t, su.Stats.ActiveParticipants)
		assert.Equal(t, 1, su.Stats.TotalParticipants)
	case <-time.After(time.Second):
		t.Fatal("expected a stats_updated event")
	}
	assert.Empty(t, statsEvents)
}
