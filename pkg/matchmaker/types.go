// Package matchmaker ranks candidate matches for a queue of player groups.
//
// The engine is a pure function of (snapshot, configuration, now): it enumerates every way to
// split whole groups into two teams of the sizes a game mode requires, scores each split on team
// balance, teammate spread and waiting time, drops splits outside the balance bound and returns
// the rest best-first. Choosing which matches to start is left to the caller.
package matchmaker

import "time"

// Group is a set of players that queued together and always land on the same team.
type Group struct {
	ID               string
	MemberAccountIDs []string
	QueuedAt         time.Time
}

// Size returns the number of players in the group.
func (g Group) Size() int {
	return len(g.MemberAccountIDs)
}

// WaitTime returns how long the group has been queued at now. Never negative.
func (g Group) WaitTime(now time.Time) time.Duration {
	wait := now.Sub(g.QueuedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// Rating is an account's skill for one rating key.
type Rating struct {
	Value      float64
	Confidence int
}

// RatingSource looks up ratings. Implementations must answer from memory for the duration of a call.
type RatingSource interface {
	GetRating(accountID, ratingKey string) (Rating, bool)
}

// RatingSourceFunc adapts a function to RatingSource.
type RatingSourceFunc func(accountID, ratingKey string) (Rating, bool)

func (f RatingSourceFunc) GetRating(accountID, ratingKey string) (Rating, bool) {
	return f(accountID, ratingKey)
}

// RatingMap is an in-memory RatingSource keyed by account ID. The rating key is ignored.
type RatingMap map[string]Rating

func (m RatingMap) GetRating(accountID, _ string) (Rating, bool) {
	r, ok := m[accountID]
	return r, ok
}

// Mode describes the game sub-type a queue fills.
type Mode struct {
	Name         string `json:"name"`
	TeamAPlayers int    `json:"teamAPlayers"`
	TeamBPlayers int    `json:"teamBPlayers"`
	RatingKey    string `json:"ratingKey"`
	Ranked       bool   `json:"ranked"`
	MaxGroupSize int    `json:"maxGroupSize"`
}

// Symmetric reports whether both teams have the same size, in which case A/B mirrors are one match.
func (m Mode) Symmetric() bool {
	return m.TeamAPlayers == m.TeamBPlayers
}

// Snapshot is the immutable queue state for one engine call.
type Snapshot struct {
	Mode   Mode
	Groups []Group
}

// Match is one ranked candidate.
type Match struct {
	TeamA []Group
	TeamB []Group

	Score float64

	TeamARating           float64
	TeamBRating           float64
	TeamEloDifference     float64
	TeammateEloDifference float64
	OldestWaitDuration    time.Duration
}

// GroupIDs returns the IDs of every group in the match, team A first.
func (m Match) GroupIDs() []string {
	ids := make([]string, 0, len(m.TeamA)+len(m.TeamB))
	for _, g := range m.TeamA {
		ids = append(ids, g.ID)
	}
	for _, g := range m.TeamB {
		ids = append(ids, g.ID)
	}
	return ids
}

// TeamAAccountIDs returns the member accounts of team A in group order.
func (m Match) TeamAAccountIDs() []string {
	return accountIDs(m.TeamA)
}

// TeamBAccountIDs returns the member accounts of team B in group order.
func (m Match) TeamBAccountIDs() []string {
	return accountIDs(m.TeamB)
}

func accountIDs(groups []Group) []string {
	var ids []string
	for _, g := range groups {
		ids = append(ids, g.MemberAccountIDs...)
	}
	return ids
}
