package matchmaker

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fourVsFour() Mode {
	return Mode{Name: "pvp", TeamAPlayers: 4, TeamBPlayers: 4, RatingKey: "pvp", MaxGroupSize: 4}
}

func oneVsOne() Mode {
	return Mode{Name: "duel", TeamAPlayers: 1, TeamBPlayers: 1, RatingKey: "duel", MaxGroupSize: 1}
}

func permissive() Configuration {
	return Configuration{
		MaxTeamEloDifferenceStart: 1e9,
		MaxTeamEloDifference:      1e9,
		TeamEloDifferenceWeight:   1,
	}
}

func group(id string, queuedAt time.Time, members ...string) Group {
	return Group{ID: id, MemberAccountIDs: members, QueuedAt: queuedAt}
}

func singles(n int, queuedAt time.Time) []Group {
	groups := make([]Group, n)
	for i := range groups {
		id := fmt.Sprintf("g%02d", i)
		groups[i] = group(id, queuedAt, "acc-"+id)
	}
	return groups
}

func matchKey(m Match) string {
	return strings.Join(ids(m.TeamA), ",") + "|" + strings.Join(ids(m.TeamB), ",")
}

func ids(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.ID
	}
	sort.Strings(out)
	return out
}

func TestGetMatchesRanked_CombinatorialCompleteness(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 8, want: 35},
		{n: 9, want: 315},
		{n: 12, want: 17325},
	}

	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d singles", tt.n), func(t *testing.T) {
			matches := engine.GetMatchesRanked(Snapshot{Mode: fourVsFour(), Groups: singles(tt.n, baseTime)}, baseTime)
			assert.Len(t, matches, tt.want)
		})
	}
}

func TestGetMatchesRanked_NoMirrorDuplicates(t *testing.T) {
	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))
	matches := engine.GetMatchesRanked(Snapshot{Mode: fourVsFour(), Groups: singles(10, baseTime)}, baseTime)

	seen := make(map[string]bool)
	for _, m := range matches {
		key := matchKey(m)
		mirror := strings.Join(ids(m.TeamB), ",") + "|" + strings.Join(ids(m.TeamA), ",")
		require.False(t, seen[key], "duplicate %s", key)
		require.False(t, seen[mirror], "mirror of %s already emitted", key)
		seen[key] = true
	}
}

func TestGetMatchesRanked_AsymmetricTeamsAreNotDeduplicated(t *testing.T) {
	mode := Mode{Name: "coop", TeamAPlayers: 1, TeamBPlayers: 2, RatingKey: "coop"}
	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))

	matches := engine.GetMatchesRanked(Snapshot{Mode: mode, Groups: singles(3, baseTime)}, baseTime)

	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Len(t, m.TeamAAccountIDs(), 1)
		assert.Len(t, m.TeamBAccountIDs(), 2)
	}
}

func TestGetMatchesRanked_GroupAtomicity(t *testing.T) {
	groups := []Group{
		group("duo-1", baseTime, "a1", "a2"),
		group("duo-2", baseTime, "b1", "b2"),
		group("trio", baseTime, "c1", "c2", "c3"),
		group("solo-1", baseTime, "d1"),
		group("solo-2", baseTime, "e1"),
		group("solo-3", baseTime, "f1"),
		group("duo-3", baseTime, "g1", "g2"),
	}
	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))

	matches := engine.GetMatchesRanked(Snapshot{Mode: fourVsFour(), Groups: groups}, baseTime)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		assert.Len(t, m.TeamAAccountIDs(), 4)
		assert.Len(t, m.TeamBAccountIDs(), 4)

		teamOf := make(map[string]string)
		for _, acc := range m.TeamAAccountIDs() {
			teamOf[acc] = "A"
		}
		for _, acc := range m.TeamBAccountIDs() {
			require.NotContains(t, teamOf, acc, "account on both teams")
			teamOf[acc] = "B"
		}
		for _, g := range append(append([]Group{}, m.TeamA...), m.TeamB...) {
			side := teamOf[g.MemberAccountIDs[0]]
			for _, acc := range g.MemberAccountIDs {
				assert.Equal(t, side, teamOf[acc], "group %s split across teams", g.ID)
			}
		}
	}
}

func TestGetMatchesRanked_StarvationAvoidance(t *testing.T) {
	cfg := Configuration{
		MaxTeamEloDifferenceStart:    50,
		MaxTeamEloDifference:         500,
		MaxTeamEloDifferenceWaitTime: time.Minute,
		TeamEloDifferenceWeight:      1,
	}
	ratings := RatingMap{"low": {Value: 1000, Confidence: 30}, "high": {Value: 1200, Confidence: 30}}
	engine := NewCasualEngine(ratings, StaticConfig(cfg))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("g-low", baseTime, "low"),
		group("g-high", baseTime, "high"),
	}}

	assert.Empty(t, engine.GetMatchesRanked(snapshot, baseTime), "fresh groups must respect the start bound")
	assert.Empty(t, engine.GetMatchesRanked(snapshot, baseTime.Add(10*time.Second)), "bound is still below 200")

	matches := engine.GetMatchesRanked(snapshot, baseTime.Add(2*time.Minute))
	require.Len(t, matches, 1)
	assert.InDelta(t, 200, matches[0].TeamEloDifference, 1e-9)
	assert.Equal(t, 2*time.Minute, matches[0].OldestWaitDuration)
}

func TestGetMatchesRanked_FallbackEscape(t *testing.T) {
	cfg := Configuration{
		MaxTeamEloDifferenceStart:    50,
		MaxTeamEloDifference:         500,
		MaxTeamEloDifferenceWaitTime: time.Minute,
		TeamEloDifferenceWeight:      1,
		FallbackTime:                 10 * time.Minute,
	}
	ratings := RatingMap{"low": {Value: 800}, "high": {Value: 1800}}
	engine := NewCasualEngine(ratings, StaticConfig(cfg))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("g-low", baseTime, "low"),
		group("g-high", baseTime.Add(time.Minute), "high"),
	}}

	assert.Empty(t, engine.GetMatchesRanked(snapshot, baseTime.Add(9*time.Minute)))

	matches := engine.GetMatchesRanked(snapshot, baseTime.Add(11*time.Minute))
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].TeamEloDifference, cfg.MaxTeamEloDifference)
}

func TestGetMatchesRanked_UnsetFallbackNeverBypasses(t *testing.T) {
	cfg := Configuration{MaxTeamEloDifferenceStart: 10, MaxTeamEloDifference: 10, MaxTeamEloDifferenceWaitTime: time.Minute}
	ratings := RatingMap{"low": {Value: 800}, "high": {Value: 1800}}
	engine := NewCasualEngine(ratings, StaticConfig(cfg))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("g-low", baseTime, "low"),
		group("g-high", baseTime, "high"),
	}}

	assert.Empty(t, engine.GetMatchesRanked(snapshot, baseTime.Add(1000*time.Hour)))
}

func TestGetMatchesRanked_Determinism(t *testing.T) {
	groups := singles(10, baseTime)
	ratings := RatingMap{}
	for i, g := range groups {
		groups[i].QueuedAt = baseTime.Add(time.Duration(i) * time.Second)
		ratings[g.MemberAccountIDs[0]] = Rating{Value: 1400 + float64(i*37%11)*20, Confidence: i}
	}
	engine := NewRankedEngine(ratings, StaticConfig(DefaultRankedConfiguration()))
	snapshot := Snapshot{Mode: fourVsFour(), Groups: groups}
	now := baseTime.Add(3 * time.Minute)

	first := engine.GetMatchesRanked(snapshot, now)
	second := engine.GetMatchesRanked(snapshot, now)
	assert.Equal(t, first, second)
}

func TestGetMatchesRanked_EmptyResults(t *testing.T) {
	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))

	tests := []struct {
		name     string
		snapshot Snapshot
	}{
		{name: "empty snapshot", snapshot: Snapshot{Mode: fourVsFour()}},
		{name: "not enough players", snapshot: Snapshot{Mode: fourVsFour(), Groups: singles(7, baseTime)}},
		{name: "sizes cannot sum to team size", snapshot: Snapshot{Mode: Mode{TeamAPlayers: 2, TeamBPlayers: 2}, Groups: []Group{
			group("t1", baseTime, "a", "b", "c"),
			group("t2", baseTime, "d", "e", "f"),
			group("s1", baseTime, "g"),
		}}},
		{name: "zero team sizes", snapshot: Snapshot{Mode: Mode{}, Groups: singles(4, baseTime)}},
		{name: "empty groups are ignored", snapshot: Snapshot{Mode: oneVsOne(), Groups: []Group{
			group("e1", baseTime),
			group("e2", baseTime),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := engine.GetMatchesRanked(tt.snapshot, baseTime)
			assert.NotNil(t, matches)
			assert.Empty(t, matches)
		})
	}
}

func TestGetMatchesRanked_DuplicateGroupIDsCountOnce(t *testing.T) {
	engine := NewCasualEngine(RatingMap{}, StaticConfig(permissive()))
	groups := []Group{
		group("a", baseTime, "acc-a"),
		group("a", baseTime, "acc-a"),
		group("b", baseTime, "acc-b"),
	}

	matches := engine.GetMatchesRanked(Snapshot{Mode: oneVsOne(), Groups: groups}, baseTime)
	assert.Len(t, matches, 1)
}

func TestGetMatchesRanked_RankingMonotonicity(t *testing.T) {
	ratings := RatingMap{
		"anchor": {Value: 1500},
		"near":   {Value: 1520},
		"far":    {Value: 1700},
	}
	engine := NewCasualEngine(ratings, StaticConfig(permissive()))
	snapshot := Snapshot{Mode: Mode{TeamAPlayers: 1, TeamBPlayers: 1}, Groups: []Group{
		group("a", baseTime, "anchor"),
		group("b", baseTime, "near"),
		group("c", baseTime, "far"),
	}}

	matches := engine.GetMatchesRanked(snapshot, baseTime)
	require.Len(t, matches, 3)

	scores := make(map[string]float64)
	for _, m := range matches {
		scores[matchKey(m)] = m.Score
	}
	assert.Greater(t, scores["a|b"], scores["a|c"])
	assert.Equal(t, "a|b", matchKey(matches[0]))
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestGetMatchesRanked_TiesKeepGenerationOrder(t *testing.T) {
	engine := NewCasualEngine(RatingMap{}, StaticConfig(Configuration{
		MaxTeamEloDifferenceStart: 1e9,
		MaxTeamEloDifference:      1e9,
	}))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("c", baseTime, "acc-c"),
		group("a", baseTime, "acc-a"),
		group("b", baseTime, "acc-b"),
	}}

	matches := engine.GetMatchesRanked(snapshot, baseTime)
	require.Len(t, matches, 3)

	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = matchKey(m)
	}
	assert.Equal(t, []string{"a|b", "a|c", "b|c"}, got)
}

func TestGetMatchesRanked_MissingRatingsUseDefault(t *testing.T) {
	engine := NewCasualEngine(RatingMap{"known": {Value: 1500, Confidence: 50}}, StaticConfig(Configuration{}))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("a", baseTime, "known"),
		group("b", baseTime, "unknown"),
	}}

	matches := engine.GetMatchesRanked(snapshot, baseTime)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].TeamEloDifference)
	assert.Equal(t, DefaultRating.Value, matches[0].TeamBRating)
}

func TestGetMatchesRanked_CustomDefaultRating(t *testing.T) {
	engine := NewCasualEngine(nil, StaticConfig(permissive()), WithDefaultRating(Rating{Value: 1000}))
	snapshot := Snapshot{Mode: oneVsOne(), Groups: singles(2, baseTime)}

	matches := engine.GetMatchesRanked(snapshot, baseTime)
	require.Len(t, matches, 1)
	assert.Equal(t, 1000.0, matches[0].TeamARating)
	assert.Equal(t, 1000.0, matches[0].TeamBRating)
}

func TestGetMatchesRanked_ResolvesConfigurationPerCall(t *testing.T) {
	calls := 0
	strict := true
	provider := ConfigProviderFunc(func(mode Mode) Configuration {
		calls++
		assert.Equal(t, "duel", mode.Name)
		if strict {
			return Configuration{MaxTeamEloDifferenceStart: 10, MaxTeamEloDifference: 10}
		}
		return permissive()
	})
	ratings := RatingMap{"low": {Value: 1000}, "high": {Value: 1100}}
	engine := NewCasualEngine(ratings, provider)
	snapshot := Snapshot{Mode: oneVsOne(), Groups: []Group{
		group("a", baseTime, "low"),
		group("b", baseTime, "high"),
	}}

	assert.Empty(t, engine.GetMatchesRanked(snapshot, baseTime))
	strict = false
	assert.Len(t, engine.GetMatchesRanked(snapshot, baseTime), 1)
	assert.Equal(t, 2, calls)
}

func TestGetMatchesRanked_RankedDiscountsProvisionalRatings(t *testing.T) {
	// Team A: an established 1500 and a provisional 2100.
	// Casual mean is 1800; ranked weights the provisional rating by half.
	ratings := RatingMap{
		"vet":     {Value: 1500, Confidence: 40},
		"rookie":  {Value: 2100, Confidence: 2},
		"other-1": {Value: 1700, Confidence: 40},
		"other-2": {Value: 1700, Confidence: 40},
	}
	mode := Mode{Name: "ranked-duo", TeamAPlayers: 2, TeamBPlayers: 2, RatingKey: "ranked"}
	snapshot := Snapshot{Mode: mode, Groups: []Group{
		group("a", baseTime, "vet", "rookie"),
		group("b", baseTime, "other-1", "other-2"),
	}}
	cfg := StaticConfig(permissive())

	casual := NewCasualEngine(ratings, cfg).GetMatchesRanked(snapshot, baseTime)
	ranked := NewRankedEngine(ratings, cfg).GetMatchesRanked(snapshot, baseTime)
	require.Len(t, casual, 1)
	require.Len(t, ranked, 1)

	assert.InDelta(t, 1800, casual[0].TeamARating, 1e-9)
	assert.InDelta(t, 1700, ranked[0].TeamARating, 1e-9)
	assert.InDelta(t, 100, casual[0].TeamEloDifference, 1e-9)
	assert.InDelta(t, 0, ranked[0].TeamEloDifference, 1e-9)
}
