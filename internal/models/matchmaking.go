package models

import (
	"time"

	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
)

type MatchmakingQueueStatus string

const (
	QueueStatusWaiting   MatchmakingQueueStatus = "waiting"
	QueueStatusMatched   MatchmakingQueueStatus = "matched"
	QueueStatusExpired   MatchmakingQueueStatus = "expired"
	QueueStatusCancelled MatchmakingQueueStatus = "cancelled"
)

// QueuedGroup 큐에 들어간 파티 (멤버는 항상 같은 팀)
type QueuedGroup struct {
	ID               string                 `db:"id" json:"id"`
	Mode             string                 `db:"mode" json:"mode"`
	MemberAccountIDs []string               `db:"-" json:"memberAccountIds"`
	QueuedAt         time.Time              `db:"queued_at" json:"queuedAt"`
	Status           MatchmakingQueueStatus `db:"status" json:"status"`
	MatchedAt        *time.Time             `db:"matched_at" json:"matchedAt,omitempty"`
}

// ToGroup converts the row into the engine's group value.
func (g QueuedGroup) ToGroup() matchmaker.Group {
	members := make([]string, len(g.MemberAccountIDs))
	copy(members, g.MemberAccountIDs)
	return matchmaker.Group{
		ID:               g.ID,
		MemberAccountIDs: members,
		QueuedAt:         g.QueuedAt,
	}
}

type MatchmakingHistory struct {
	ID                    string    `db:"id" json:"id"`
	MatchID               *string   `db:"match_id" json:"matchId,omitempty"`
	Mode                  string    `db:"mode" json:"mode"`
	TeamEloDifference     float64   `db:"team_elo_difference" json:"teamEloDifference"`
	TeammateEloDifference float64   `db:"teammate_elo_difference" json:"teammateEloDifference"`
	Score                 float64   `db:"score" json:"score"`
	OldestWaitSeconds     float64   `db:"oldest_wait_seconds" json:"oldestWaitSeconds"`
	MatchedAt             time.Time `db:"matched_at" json:"matchedAt"`
}
