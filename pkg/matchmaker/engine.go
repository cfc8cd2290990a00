package matchmaker

import (
	"sort"
	"time"
)

// Engine ranks candidate matches. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	aggregator    Aggregator
	ratings       RatingSource
	configs       ConfigProvider
	defaultRating Rating
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDefaultRating overrides the rating used for accounts missing from the rating source.
func WithDefaultRating(r Rating) Option {
	return func(e *Engine) {
		e.defaultRating = r
	}
}

// NewEngine creates an engine with the given aggregation strategy.
func NewEngine(aggregator Aggregator, ratings RatingSource, configs ConfigProvider, opts ...Option) *Engine {
	if aggregator == nil {
		aggregator = CasualAggregator{}
	}
	if configs == nil {
		configs = StaticConfig(DefaultConfiguration())
	}
	e := &Engine{
		aggregator:    aggregator,
		ratings:       ratings,
		configs:       configs,
		defaultRating: DefaultRating,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewCasualEngine creates an engine that balances on plain team means.
func NewCasualEngine(ratings RatingSource, configs ConfigProvider, opts ...Option) *Engine {
	return NewEngine(CasualAggregator{}, ratings, configs, opts...)
}

// NewRankedEngine creates an engine that discounts provisional ratings.
func NewRankedEngine(ratings RatingSource, configs ConfigProvider, opts ...Option) *Engine {
	return NewEngine(NewRankedAggregator(), ratings, configs, opts...)
}

// GetMatchesRanked returns every feasible match in the snapshot, best score first.
// Equal scores keep generation order. An empty result is not an error.
func (e *Engine) GetMatchesRanked(snapshot Snapshot, now time.Time) []Match {
	mode := snapshot.Mode
	if mode.TeamAPlayers <= 0 || mode.TeamBPlayers <= 0 || len(snapshot.Groups) == 0 {
		return []Match{}
	}

	cfg := e.configs.MatchmakingConfiguration(mode).Normalize()
	maxSize := mode.TeamAPlayers
	if mode.TeamBPlayers > maxSize {
		maxSize = mode.TeamBPlayers
	}
	a := newArena(snapshot.Groups, maxSize)
	s := newScorer(a, cfg, e.aggregator, e.ratings, e.defaultRating, mode.RatingKey, now)

	matches := []Match{}
	generateCandidates(a, mode, func(c candidate) {
		if m, ok := s.score(c); ok {
			matches = append(matches, m)
		}
	})

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
