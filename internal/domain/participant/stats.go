package participant

import "slices"

// Stats is the aggregate view over all participants. It is derived on demand
// and never stored.
type Stats struct {
	TotalParticipants  int `json:"totalParticipants"`
	ActiveParticipants int `json:"activeParticipants"`
	AvgStreak          int `json:"avgStreak"`
	TopStreak          int `json:"topStreak"`
	TotalFailures      int `json:"totalFailures"`
}

// ComputeStats aggregates the given participants. An empty input yields all zeros.
func ComputeStats(ps []Participant) Stats {
	var s Stats
	s.TotalParticipants = len(ps)
	if len(ps) == 0 {
		return s
	}

	sum := 0
	for _, p := range ps {
		sum += p.CurrentStreak
		s.TotalFailures += p.TotalFailures
		s.TopStreak = max(s.TopStreak, p.CurrentStreak)
		if p.IsOnline {
			s.ActiveParticipants++
		}
	}

	// Round half up, counters are never negative.
	n := len(ps)
	s.AvgStreak = (2*sum + n) / (2 * n)

	return s
}

// Top returns the participant with the highest current streak. Ties resolve to
// the first one in the given order.
func Top(ps []Participant) (Participant, bool) {
	if len(ps) == 0 {
		return Participant{}, false
	}
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].CurrentStreak > ps[best].CurrentStreak {
			best = i
		}
	}
	return ps[best], true
}

// Leaderboard returns the participants ordered by current streak, highest
// first. Equal streaks keep their input order.
func Leaderboard(ps []Participant) []Participant {
	out := slices.Clone(ps)
	slices.SortStableFunc(out, func(a, b Participant) int {
		return b.CurrentStreak - a.CurrentStreak
	})
	return out
}
