package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/pkg/database"
)

type RatingRepository struct {
	db *database.DB
}

func NewRatingRepository(db *database.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// GetRatings 계정 목록의 rating 일괄 조회. 행이 없는 계정은 결과에 포함되지 않는다.
func (r *RatingRepository) GetRatings(ctx context.Context, ratingKey string, accountIDs []string) ([]models.AccountRating, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, rating_key, rating, games_played, updated_at
		FROM account_ratings
		WHERE rating_key = $1 AND account_id = ANY($2)
	`, ratingKey, pq.Array(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.AccountRating
	for rows.Next() {
		var rating models.AccountRating
		if err := rows.Scan(
			&rating.AccountID,
			&rating.RatingKey,
			&rating.Rating,
			&rating.GamesPlayed,
			&rating.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return ratings, nil
}

// Upsert rating 저장 (게임 결과 처리 쪽에서 호출)
func (r *RatingRepository) Upsert(ctx context.Context, rating *models.AccountRating) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_ratings (account_id, rating_key, rating, games_played)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, rating_key)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			updated_at = NOW()
	`, rating.AccountID, rating.RatingKey, rating.Rating, rating.GamesPlayed)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}
