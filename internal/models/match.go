package models

import "time"

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusLaunching MatchStatus = "launching"
	MatchStatusFailed    MatchStatus = "failed"
)

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// Match 매칭 결과로 생성된 게임
type Match struct {
	ID          string        `json:"id" db:"id"`
	Mode        string        `json:"mode" db:"mode"`
	Status      MatchStatus   `json:"status" db:"status"`
	TeamARating float64       `json:"teamARating" db:"team_a_rating"`
	TeamBRating float64       `json:"teamBRating" db:"team_b_rating"`
	Score       float64       `json:"score" db:"score"`
	Players     []MatchPlayer `json:"players" db:"-"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
}

type MatchPlayer struct {
	MatchID   string `json:"matchId" db:"match_id"`
	AccountID string `json:"accountId" db:"account_id"`
	GroupID   string `json:"groupId" db:"group_id"`
	Team      Team   `json:"team" db:"team"`
}

// TeamAccountIDs 팀별 계정 목록
func (m *Match) TeamAccountIDs(team Team) []string {
	var ids []string
	for _, p := range m.Players {
		if p.Team == team {
			ids = append(ids, p.AccountID)
		}
	}
	return ids
}

// LaunchRequest is the payload handed to the game-server launch pipeline.
type LaunchRequest struct {
	MatchID string   `json:"matchId"`
	Mode    string   `json:"mode"`
	TeamA   []string `json:"teamA"`
	TeamB   []string `json:"teamB"`
}
