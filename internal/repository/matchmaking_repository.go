package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/pkg/database"
)

var (
	ErrAccountAlreadyQueued = errors.New("account already queued in this mode")
	ErrGroupNotFound        = errors.New("queued group not found")
	ErrGroupsUnavailable    = errors.New("one or more groups are no longer waiting")
)

type MatchmakingRepository struct {
	db *database.DB
}

func NewMatchmakingRepository(db *database.DB) *MatchmakingRepository {
	return &MatchmakingRepository{db: db}
}

// EnqueueGroup 파티를 매칭 큐에 추가. 이미 같은 모드에서 대기 중인 계정이 있으면 거부한다.
func (r *MatchmakingRepository) EnqueueGroup(ctx context.Context, mode string, accountIDs []string) (*models.QueuedGroup, error) {
	group := &models.QueuedGroup{
		Mode:             mode,
		MemberAccountIDs: accountIDs,
		Status:           models.QueueStatusWaiting,
	}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var conflicting int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM matchmaking_group_members m
			JOIN matchmaking_queue q ON q.id = m.group_id
			WHERE q.mode = $1 AND q.status = 'waiting' AND m.account_id = ANY($2)
		`, mode, pq.Array(accountIDs)).Scan(&conflicting)
		if err != nil {
			return fmt.Errorf("failed to check queued accounts: %w", err)
		}
		if conflicting > 0 {
			return ErrAccountAlreadyQueued
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO matchmaking_queue (mode)
			VALUES ($1)
			RETURNING id, queued_at
		`, mode).Scan(&group.ID, &group.QueuedAt)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		for i, accountID := range accountIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO matchmaking_group_members (group_id, account_id, position)
				VALUES ($1, $2, $3)
			`, group.ID, accountID, i); err != nil {
				return fmt.Errorf("failed to insert group member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return group, nil
}

// RemoveGroup 대기 중인 파티를 취소
func (r *MatchmakingRepository) RemoveGroup(ctx context.Context, groupID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matchmaking_queue
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'waiting'
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove group: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// FindGroup 파티 조회 (없으면 nil, nil)
func (r *MatchmakingRepository) FindGroup(ctx context.Context, groupID string) (*models.QueuedGroup, error) {
	group := &models.QueuedGroup{}
	err := r.db.QueryRowContext(ctx, `
		SELECT q.id, q.mode, q.queued_at, q.status, q.matched_at,
		       ARRAY(SELECT account_id FROM matchmaking_group_members WHERE group_id = q.id ORDER BY position)
		FROM matchmaking_queue q
		WHERE q.id = $1
	`, groupID).Scan(
		&group.ID,
		&group.Mode,
		&group.QueuedAt,
		&group.Status,
		&group.MatchedAt,
		pq.Array(&group.MemberAccountIDs),
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group: %w", err)
	}

	return group, nil
}

// GetWaitingGroups 모드별 대기 중인 파티 목록 (오래 기다린 순)
func (r *MatchmakingRepository) GetWaitingGroups(ctx context.Context, mode string) ([]models.QueuedGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.id, q.mode, q.queued_at, q.status, q.matched_at,
		       ARRAY(SELECT account_id FROM matchmaking_group_members WHERE group_id = q.id ORDER BY position)
		FROM matchmaking_queue q
		WHERE q.mode = $1 AND q.status = 'waiting'
		ORDER BY q.queued_at ASC, q.id ASC
	`, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting groups: %w", err)
	}
	defer rows.Close()

	var groups []models.QueuedGroup
	for rows.Next() {
		var group models.QueuedGroup
		if err := rows.Scan(
			&group.ID,
			&group.Mode,
			&group.QueuedAt,
			&group.Status,
			&group.MatchedAt,
			pq.Array(&group.MemberAccountIDs),
		); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// MarkAsMatched 파티들을 한 번에 매칭 완료로 표시. 하나라도 대기 상태가 아니면 아무것도 바꾸지 않는다.
func (r *MatchmakingRepository) MarkAsMatched(ctx context.Context, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE matchmaking_queue
			SET status = 'matched', matched_at = NOW()
			WHERE id = ANY($1) AND status = 'waiting'
		`, pq.Array(groupIDs))
		if err != nil {
			return fmt.Errorf("failed to mark groups as matched: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows != int64(len(groupIDs)) {
			return ErrGroupsUnavailable
		}
		return nil
	})
}

// ReleaseGroups 실행에 실패한 매치의 파티를 원래 대기 순서로 되돌림
func (r *MatchmakingRepository) ReleaseGroups(ctx context.Context, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE matchmaking_queue
		SET status = 'waiting', matched_at = NULL
		WHERE id = ANY($1) AND status = 'matched'
	`, pq.Array(groupIDs))
	if err != nil {
		return fmt.Errorf("failed to release groups: %w", err)
	}
	return nil
}

// RecordMatch 매칭 기록 저장
func (r *MatchmakingRepository) RecordMatch(ctx context.Context, history *models.MatchmakingHistory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO matchmaking_history
			(match_id, mode, team_elo_difference, teammate_elo_difference, score, oldest_wait_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		history.MatchID,
		history.Mode,
		history.TeamEloDifference,
		history.TeammateEloDifference,
		history.Score,
		history.OldestWaitSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to record match history: %w", err)
	}
	return nil
}

// ExpireStale 오래 대기한 파티를 만료 처리하고 반환
func (r *MatchmakingRepository) ExpireStale(ctx context.Context, mode string, maxWait time.Duration) ([]models.QueuedGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE matchmaking_queue q
		SET status = 'expired'
		WHERE q.mode = $1 AND q.status = 'waiting' AND q.queued_at < NOW() - $2::interval
		RETURNING q.id, q.mode, q.queued_at, q.status, q.matched_at,
		          ARRAY(SELECT account_id FROM matchmaking_group_members WHERE group_id = q.id ORDER BY position)
	`, mode, fmt.Sprintf("%d seconds", int(maxWait.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale groups: %w", err)
	}
	defer rows.Close()

	var expired []models.QueuedGroup
	for rows.Next() {
		var group models.QueuedGroup
		if err := rows.Scan(
			&group.ID,
			&group.Mode,
			&group.QueuedAt,
			&group.Status,
			&group.MatchedAt,
			pq.Array(&group.MemberAccountIDs),
		); err != nil {
			return nil, fmt.Errorf("failed to scan expired group: %w", err)
		}
		expired = append(expired, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired groups: %w", err)
	}
	return expired, nil
}
