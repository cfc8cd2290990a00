package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/internal/websocket"
	"github.com/tdkkdt/EvoS-sub002/pkg/distributed"
	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
	"go.uber.org/zap"
)

const (
	launchItemKind   = "match_launch"
	launchMaxRetries = 3
)

type MatchStore interface {
	Create(ctx context.Context, match *models.Match) error
	UpdateStatus(ctx context.Context, id string, status models.MatchStatus) error
	FindByID(ctx context.Context, id string) (*models.Match, error)
}

type HistoryStore interface {
	RecordMatch(ctx context.Context, history *models.MatchmakingHistory) error
}

type LaunchQueue interface {
	Enqueue(ctx context.Context, item *distributed.QueueItem) error
}

type MatchNotifier interface {
	SendMatchFound(accountID string, msg websocket.MatchFoundMessage)
}

// MatchService 선택된 매치를 저장하고 게임 서버 실행 큐에 넘긴다
type MatchService struct {
	matchRepo   MatchStore
	historyRepo HistoryStore
	launchQueue LaunchQueue
	notifier    MatchNotifier
	logger      *zap.Logger
	now         func() time.Time
}

func NewMatchService(
	matchRepo MatchStore,
	historyRepo HistoryStore,
	launchQueue LaunchQueue,
	notifier MatchNotifier,
	logger *zap.Logger,
) *MatchService {
	return &MatchService{
		matchRepo:   matchRepo,
		historyRepo: historyRepo,
		launchQueue: launchQueue,
		notifier:    notifier,
		logger:      logger.Named("match"),
		now:         time.Now,
	}
}

// Launch 매치 생성 → 실행 요청 → 플레이어 알림
func (s *MatchService) Launch(ctx context.Context, mode matchmaker.Mode, candidate matchmaker.Match) (*models.Match, error) {
	match := newMatchRecord(mode, candidate, s.now())

	if err := s.matchRepo.Create(ctx, match); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	// 실행이 늦어질수록 먼저 처리되도록 대기 시간을 우선순위로 사용
	item, err := distributed.NewQueueItem(match.ID, launchItemKind, models.LaunchRequest{
		MatchID: match.ID,
		Mode:    mode.Name,
		TeamA:   candidate.TeamAAccountIDs(),
		TeamB:   candidate.TeamBAccountIDs(),
	}, int(candidate.OldestWaitDuration.Seconds()), launchMaxRetries)
	if err == nil {
		err = s.launchQueue.Enqueue(ctx, item)
	}
	if err != nil {
		if updateErr := s.matchRepo.UpdateStatus(ctx, match.ID, models.MatchStatusFailed); updateErr != nil {
			s.logger.Error("Failed to mark match as failed",
				zap.String("matchId", match.ID),
				zap.Error(updateErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	match.Status = models.MatchStatusLaunching
	if err := s.matchRepo.UpdateStatus(ctx, match.ID, models.MatchStatusLaunching); err != nil {
		s.logger.Warn("Failed to update match status",
			zap.String("matchId", match.ID),
			zap.Error(err))
	}

	matchID := match.ID
	if err := s.historyRepo.RecordMatch(ctx, &models.MatchmakingHistory{
		MatchID:               &matchID,
		Mode:                  mode.Name,
		TeamEloDifference:     candidate.TeamEloDifference,
		TeammateEloDifference: candidate.TeammateEloDifference,
		Score:                 candidate.Score,
		OldestWaitSeconds:     candidate.OldestWaitDuration.Seconds(),
		MatchedAt:             match.CreatedAt,
	}); err != nil {
		// 히스토리는 통계용
		s.logger.Warn("Failed to record matchmaking history",
			zap.String("matchId", match.ID),
			zap.Error(err))
	}

	s.notifyPlayers(match, candidate)

	s.logger.Info("Match launched",
		zap.String("matchId", match.ID),
		zap.String("mode", mode.Name),
		zap.Float64("teamEloDifference", candidate.TeamEloDifference),
		zap.Float64("score", candidate.Score),
		zap.Duration("oldestWait", candidate.OldestWaitDuration))

	return match, nil
}

// GetMatch 매치 조회
func (s *MatchService) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

func newMatchRecord(mode matchmaker.Mode, candidate matchmaker.Match, now time.Time) *models.Match {
	match := &models.Match{
		ID:          uuid.New().String(),
		Mode:        mode.Name,
		Status:      models.MatchStatusPending,
		TeamARating: candidate.TeamARating,
		TeamBRating: candidate.TeamBRating,
		Score:       candidate.Score,
		CreatedAt:   now,
	}
	match.Players = append(match.Players, teamPlayers(match.ID, models.TeamA, candidate.TeamA)...)
	match.Players = append(match.Players, teamPlayers(match.ID, models.TeamB, candidate.TeamB)...)
	return match
}

func teamPlayers(matchID string, team models.Team, groups []matchmaker.Group) []models.MatchPlayer {
	var players []models.MatchPlayer
	for _, g := range groups {
		for _, accountID := range g.MemberAccountIDs {
			players = append(players, models.MatchPlayer{
				MatchID:   matchID,
				AccountID: accountID,
				GroupID:   g.ID,
				Team:      team,
			})
		}
	}
	return players
}

func (s *MatchService) notifyPlayers(match *models.Match, candidate matchmaker.Match) {
	if s.notifier == nil {
		return
	}

	teamA := candidate.TeamAAccountIDs()
	teamB := candidate.TeamBAccountIDs()

	for _, p := range match.Players {
		allies, enemies := teamA, teamB
		if p.Team == models.TeamB {
			allies, enemies = teamB, teamA
		}
		s.notifier.SendMatchFound(p.AccountID, websocket.MatchFoundMessage{
			MatchID: match.ID,
			Mode:    match.Mode,
			Team:    string(p.Team),
			GroupID: p.GroupID,
			Allies:  allies,
			Enemies: enemies,
		})
	}
}
