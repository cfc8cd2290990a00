package matchmaker

import (
	"math"
	"time"
)

// DefaultRating stands in for accounts the rating source does not know.
var DefaultRating = Rating{Value: 1500, Confidence: 0}

// scorer evaluates candidates against one resolved configuration.
type scorer struct {
	arena      arena
	cfg        Configuration
	aggregator Aggregator
	now        time.Time

	// member ratings per arena index, resolved once per call
	ratings [][]Rating
}

func newScorer(a arena, cfg Configuration, agg Aggregator, source RatingSource, defaultRating Rating, ratingKey string, now time.Time) *scorer {
	ratings := make([][]Rating, len(a.groups))
	for i, g := range a.groups {
		ratings[i] = make([]Rating, len(g.MemberAccountIDs))
		for j, accountID := range g.MemberAccountIDs {
			r, ok := Rating{}, false
			if source != nil {
				r, ok = source.GetRating(accountID, ratingKey)
			}
			if !ok {
				r = defaultRating
			}
			ratings[i][j] = r
		}
	}
	return &scorer{
		arena:      a,
		cfg:        cfg,
		aggregator: agg,
		now:        now,
		ratings:    ratings,
	}
}

// score returns the evaluated match and whether it passes the balance filter.
func (s *scorer) score(c candidate) (Match, bool) {
	teamA, spreadA := s.team(c.teamA)
	teamB, spreadB := s.team(c.teamB)

	m := Match{
		TeamA:                 s.groups(c.teamA),
		TeamB:                 s.groups(c.teamB),
		TeamARating:           teamA,
		TeamBRating:           teamB,
		TeamEloDifference:     math.Abs(teamA - teamB),
		TeammateEloDifference: spreadA + spreadB,
		OldestWaitDuration:    s.oldestWait(c),
	}

	if !s.feasible(m) {
		return m, false
	}

	mate := m.TeammateEloDifference
	if s.cfg.TeammateEloDifferenceWeightCap > 0 {
		mate = math.Min(mate, s.cfg.TeammateEloDifferenceWeightCap)
	}
	wait := m.OldestWaitDuration
	if s.cfg.WaitingTimeWeightCap > 0 && wait > s.cfg.WaitingTimeWeightCap {
		wait = s.cfg.WaitingTimeWeightCap
	}

	m.Score = -(s.cfg.TeamEloDifferenceWeight * m.TeamEloDifference) -
		(s.cfg.TeammateEloDifferenceWeight * mate) +
		(s.cfg.WaitingTimeWeight * wait.Seconds())
	return m, true
}

func (s *scorer) feasible(m Match) bool {
	if m.OldestWaitDuration >= s.cfg.FallbackTime {
		return true
	}
	return m.TeamEloDifference <= s.cfg.Bound(m.OldestWaitDuration)
}

// team returns the aggregated rating and the max-min member spread of a team.
func (s *scorer) team(indices []int) (float64, float64) {
	var members []Rating
	for _, i := range indices {
		members = append(members, s.ratings[i]...)
	}
	if len(members) == 0 {
		return 0, 0
	}
	lo, hi := members[0].Value, members[0].Value
	for _, r := range members[1:] {
		lo = math.Min(lo, r.Value)
		hi = math.Max(hi, r.Value)
	}
	return s.aggregator.TeamRating(members), hi - lo
}

func (s *scorer) oldestWait(c candidate) time.Duration {
	var oldest time.Duration
	for _, idx := range [][]int{c.teamA, c.teamB} {
		for _, i := range idx {
			if w := s.arena.groups[i].WaitTime(s.now); w > oldest {
				oldest = w
			}
		}
	}
	return oldest
}

func (s *scorer) groups(indices []int) []Group {
	out := make([]Group, len(indices))
	for k, i := range indices {
		out[k] = s.arena.groups[i]
	}
	return out
}
