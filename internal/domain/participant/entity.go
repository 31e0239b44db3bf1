// Package participant contains the streak domain model: participants, the
// achievement tier table, aggregate statistics and the typed domain events.
// This is the core of the business logic; it has no infrastructure dependencies.
package participant

import (
	"slices"
	"strings"
	"time"

	"github.com/streakhub/streak-hub/internal/domain/shared"
)

// DefaultOnlineThreshold is how long after the last activity a participant
// is still considered online.
const DefaultOnlineThreshold = 5 * time.Minute

// Participant is one person tracking a streak. The ledger owns the canonical
// copy; everything handed outside is a Clone.
type Participant struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Name is the trimmed, non-empty display name.
	Name string `json:"name"`

	// CurrentStreak is the number of consecutive qualifying days.
	CurrentStreak int `json:"currentStreak"`

	// BestRecord is the highest streak captured at a reset. Never decreases.
	BestRecord int `json:"bestRecord"`

	// TotalFailures counts resets.
	TotalFailures int `json:"totalFailures"`

	// LastActivity is the time of the latest mutation or ping.
	LastActivity time.Time `json:"lastActivity"`

	// JoinDate is the creation time.
	JoinDate time.Time `json:"joinDate"`

	// LastResetAt is the time of the latest reset, nil if never reset.
	LastResetAt *time.Time `json:"lastResetAt,omitempty"`

	// Achievements lists tier levels reached at least once. Informational:
	// the effective tier is always derived from CurrentStreak.
	Achievements []Level `json:"achievements"`

	// IsOnline is derived from LastActivity by the presence sweep.
	IsOnline bool `json:"isOnline"`
}

// New creates a participant with zeroed counters, online at now.
func New(id, name string, now time.Time) (*Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrEmptyName
	}
	if id == "" {
		return nil, shared.NewDomainError("participant", "New", shared.ErrEmptyValue, "id cannot be empty")
	}

	return &Participant{
		ID:           id,
		Name:         name,
		LastActivity: now,
		JoinDate:     now,
		Achievements: []Level{},
		IsOnline:     true,
	}, nil
}

// Clone returns a deep copy safe to hand to observers.
func (p *Participant) Clone() Participant {
	c := *p
	c.Achievements = slices.Clone(p.Achievements)
	if c.Achievements == nil {
		c.Achievements = []Level{}
	}
	if p.LastResetAt != nil {
		t := *p.LastResetAt
		c.LastResetAt = &t
	}
	return c
}

// Touch records activity at now and marks the participant online.
func (p *Participant) Touch(now time.Time) {
	if now.Before(p.JoinDate) {
		now = p.JoinDate
	}
	p.LastActivity = now
	p.IsOnline = true
}

// Increment adds one day to the streak and returns the tier levels that were
// reached for the first time.
func (p *Participant) Increment(now time.Time) []Level {
	p.CurrentStreak++
	p.Touch(now)

	var unlocked []Level
	for _, tier := range tiers {
		if tier.ThresholdDays > p.CurrentStreak {
			break
		}
		if !slices.Contains(p.Achievements, tier.Level) {
			p.Achievements = append(p.Achievements, tier.Level)
			unlocked = append(unlocked, tier.Level)
		}
	}
	return unlocked
}

// Reset zeroes the streak after a failure. The streak value before zeroing is
// folded into BestRecord and returned.
func (p *Participant) Reset(now time.Time) int {
	previous := p.CurrentStreak
	p.BestRecord = max(p.BestRecord, previous)
	p.CurrentStreak = 0
	p.TotalFailures++
	p.Touch(now)
	resetAt := p.LastActivity
	p.LastResetAt = &resetAt
	return previous
}

// IsStale reports whether an online participant has been idle longer than threshold.
func (p *Participant) IsStale(now time.Time, threshold time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastActivity) > threshold
}

// MarkOffline flips the derived presence flag.
func (p *Participant) MarkOffline() {
	p.IsOnline = false
}

// Normalize repairs a record read from storage so the invariants hold again.
// It reports false when the record is unusable and should be dropped.
func (p *Participant) Normalize() bool {
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" {
		return false
	}
	p.CurrentStreak = max(p.CurrentStreak, 0)
	p.BestRecord = max(p.BestRecord, 0)
	p.TotalFailures = max(p.TotalFailures, 0)
	if p.JoinDate.IsZero() {
		p.JoinDate = p.LastActivity
	}
	if p.LastActivity.Before(p.JoinDate) {
		p.LastActivity = p.JoinDate
	}
	if p.Achievements == nil {
		p.Achievements = []Level{}
	}
	return true
}
