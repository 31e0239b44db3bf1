// Package jobs contains the recurring jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/streakhub/streak-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// PresenceSweepName is the scheduler name of the sweep job.
const PresenceSweepName = "presence_sweep"

// Sweeper demotes idle participants and reports how many changed.
type Sweeper interface {
	SweepPresence(ctx context.Context) (int, error)
}

// PresenceSweepJob re-derives online status from activity staleness.
type PresenceSweepJob struct {
	sweeper Sweeper
	clock   clockwork.Clock
	timeout time.Duration

	lastRunStats atomic.Pointer[PresenceSweepStats]
}

// PresenceSweepStats contains statistics from a sweep run.
type PresenceSweepStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Demoted   int
}

// NewPresenceSweepJob creates the sweep job. timeout bounds a single run; zero
// means no bound beyond the scheduler's context. The job logs through the
// logger the scheduler attaches to its context.
func NewPresenceSweepJob(sweeper Sweeper, clock clockwork.Clock, timeout time.Duration) *PresenceSweepJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PresenceSweepJob{
		sweeper: sweeper,
		clock:   clock,
		timeout: timeout,
	}
}

// Name returns the job name.
func (j *PresenceSweepJob) Name() string {
	return PresenceSweepName
}

// Description returns a human-readable description.
func (j *PresenceSweepJob) Description() string {
	return "Marks participants offline once their last activity is older than the online threshold"
}

// Run executes one sweep.
func (j *PresenceSweepJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	startedAt := j.clock.Now()
	demoted, err := j.sweeper.SweepPresence(ctx)
	if err != nil {
		return fmt.Errorf("presence sweep: %w", err)
	}

	stats := &PresenceSweepStats{
		StartedAt: startedAt,
		Duration:  j.clock.Since(startedAt),
		Demoted:   demoted,
	}
	j.lastRunStats.Store(stats)

	if demoted > 0 {
		logger.FromContext(ctx).Info("participants went offline", logger.Changed(demoted))
	}
	return nil
}

// LastRunStats returns statistics from the last successful run, nil before
// the first one.
func (j *PresenceSweepJob) LastRunStats() *PresenceSweepStats {
	return j.lastRunStats.Load()
}
