package models

import "time"

// AccountRating 계정의 rating key별 실력 점수
type AccountRating struct {
	AccountID   string    `json:"accountId" db:"account_id"`
	RatingKey   string    `json:"ratingKey" db:"rating_key"`
	Rating      float64   `json:"rating" db:"rating"`
	GamesPlayed int       `json:"gamesPlayed" db:"games_played"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
