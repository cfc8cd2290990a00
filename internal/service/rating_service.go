package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
)

// RatingStore is the persistence side of ratings.
type RatingStore interface {
	GetRatings(ctx context.Context, ratingKey string, accountIDs []string) ([]models.AccountRating, error)
}

type ratingCacheKey struct {
	accountID string
	ratingKey string
}

type cachedRating struct {
	rating    matchmaker.Rating
	found     bool
	expiresAt time.Time
}

// RatingService 계정 rating 캐시.
// 엔진은 GetRating을 메모리에서만 호출하므로 사이클 시작 전에 Prefetch로 채운다.
type RatingService struct {
	repo RatingStore
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	cache map[ratingCacheKey]cachedRating
}

var _ RatingCache = (*RatingService)(nil)

func NewRatingService(repo RatingStore, ttl time.Duration) *RatingService {
	return &RatingService{
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[ratingCacheKey]cachedRating),
	}
}

// Prefetch 캐시에 없거나 만료된 계정만 DB에서 읽어 채운다.
// rating 행이 없는 계정도 "없음"으로 캐시해 매 사이클 재조회하지 않는다.
func (s *RatingService) Prefetch(ctx context.Context, ratingKey string, accountIDs []string) error {
	now := s.now()

	s.mu.RLock()
	missing := make([]string, 0, len(accountIDs))
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		entry, ok := s.cache[ratingCacheKey{id, ratingKey}]
		if !ok || !now.Before(entry.expiresAt) {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	ratings, err := s.repo.GetRatings(ctx, ratingKey, missing)
	if err != nil {
		return fmt.Errorf("failed to prefetch ratings: %w", err)
	}

	expiresAt := now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range missing {
		s.cache[ratingCacheKey{id, ratingKey}] = cachedRating{expiresAt: expiresAt}
	}
	for _, r := range ratings {
		s.cache[ratingCacheKey{r.AccountID, ratingKey}] = cachedRating{
			rating:    matchmaker.Rating{Value: r.Rating, Confidence: r.GamesPlayed},
			found:     true,
			expiresAt: expiresAt,
		}
	}
	return nil
}

// GetRating implements matchmaker.RatingSource. Expiry is only checked by Prefetch
// so one cycle sees one consistent set of ratings.
func (s *RatingService) GetRating(accountID, ratingKey string) (matchmaker.Rating, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[ratingCacheKey{accountID, ratingKey}]
	if !ok || !entry.found {
		return matchmaker.Rating{}, false
	}
	return entry.rating, true
}

// PurgeExpired 만료된 항목 정리. 정리한 개수 반환
func (s *RatingService) PurgeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, entry := range s.cache {
		if !now.Before(entry.expiresAt) {
			delete(s.cache, key)
			purged++
		}
	}
	return purged
}
