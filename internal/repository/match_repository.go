package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create 매치와 팀 구성을 한 트랜잭션으로 저장
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO matches (id, mode, status, team_a_rating, team_b_rating, score)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`,
			match.ID,
			match.Mode,
			match.Status,
			match.TeamARating,
			match.TeamBRating,
			match.Score,
		).Scan(&match.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create match: %w", err)
		}

		for _, p := range match.Players {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO match_players (match_id, account_id, group_id, team)
				VALUES ($1, $2, $3, $4)
			`, match.ID, p.AccountID, p.GroupID, p.Team); err != nil {
				return fmt.Errorf("failed to add match player: %w", err)
			}
		}
		return nil
	})
}

// UpdateStatus 매치 상태 변경
func (r *MatchRepository) UpdateStatus(ctx context.Context, matchID string, status models.MatchStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET status = $1 WHERE id = $2
	`, status, matchID)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	return nil
}

// FindByID 매치 조회 (없으면 nil, nil)
func (r *MatchRepository) FindByID(ctx context.Context, matchID string) (*models.Match, error) {
	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, mode, status, team_a_rating, team_b_rating, score, created_at
		FROM matches
		WHERE id = $1
	`, matchID).Scan(
		&match.ID,
		&match.Mode,
		&match.Status,
		&match.TeamARating,
		&match.TeamBRating,
		&match.Score,
		&match.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, account_id, group_id, team
		FROM match_players
		WHERE match_id = $1
		ORDER BY team, group_id, account_id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.MatchPlayer
		if err := rows.Scan(&p.MatchID, &p.AccountID, &p.GroupID, &p.Team); err != nil {
			return nil, fmt.Errorf("failed to scan match player: %w", err)
		}
		match.Players = append(match.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match players: %w", err)
	}

	return match, nil
}
