package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestComputeStats(t *testing.T) {
	ps := []Participant{
		{ID: "a", CurrentStreak: 3, TotalFailures: 1, IsOnline: true},
		{ID: "b", CurrentStreak: 4, TotalFailures: 0, IsOnline: false},
		{ID: "c", CurrentStreak: 0, TotalFailures: 4, IsOnline: true},
		{ID: "d", CurrentStreak: 3, TotalFailures: 2, IsOnline: false},
	}

	s := ComputeStats(ps)
	assert.Equal(t, 4, s.TotalParticipants)
	assert.Equal(t, 2, s.ActiveParticipants)
	assert.Equal(t, 3, s.AvgStreak) // 10/4 = 2.5 rounds up
	assert.Equal(t, 4, s.TopStreak)
	assert.Equal(t, 7, s.TotalFailures)
}

func TestComputeStats_RoundsDown(t *testing.T) {
	ps := []Participant{{CurrentStreak: 1}, {CurrentStreak: 1}, {CurrentStreak: 2}}
	assert.Equal(t, 1, ComputeStats(ps).AvgStreak) // 4/3 = 1.33
}

func TestTop_FirstWinsTies(t *testing.T) {
	_, ok := Top(nil)
	assert.False(t, ok)

	ps := []Participant{
		{ID: "a", CurrentStreak: 2},
		{ID: "b", CurrentStreak: 9},
		{ID: "c", CurrentStreak: 9},
	}
	top, ok := Top(ps)
	assert.True(t, ok)
	assert.Equal(t, "b", top.ID)
}

func TestLeaderboard_Stable(t *testing.T) {
	ps := []Participant{
		{ID: "a", CurrentStreak: 1},
		{ID: "b", CurrentStreak: 5},
		{ID: "c", CurrentStreak: 1},
		{ID: "d", CurrentStreak: 5},
	}

	board := Leaderboard(ps)
	ids := make([]string, 0, len(board))
	for _, p := range board {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, "a", ps[0].ID, "input must not be reordered")
}
