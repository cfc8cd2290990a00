package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tdkkdt/EvoS-sub002/internal/config"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/internal/repository"
	"github.com/tdkkdt/EvoS-sub002/pkg/distributed"
	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
	"go.uber.org/zap"
)

// QueueStore is the persistence side of the matchmaking queue.
type QueueStore interface {
	EnqueueGroup(ctx context.Context, mode string, accountIDs []string) (*models.QueuedGroup, error)
	RemoveGroup(ctx context.Context, groupID string) error
	FindGroup(ctx context.Context, groupID string) (*models.QueuedGroup, error)
	GetWaitingGroups(ctx context.Context, mode string) ([]models.QueuedGroup, error)
	MarkAsMatched(ctx context.Context, groupIDs ...string) error
	ReleaseGroups(ctx context.Context, groupIDs ...string) error
	ExpireStale(ctx context.Context, mode string, maxWait time.Duration) ([]models.QueuedGroup, error)
}

// RatingPrefetcher is a rating source that must be warmed before an engine call.
type RatingPrefetcher interface {
	matchmaker.RatingSource
	Prefetch(ctx context.Context, ratingKey string, accountIDs []string) error
}

// RatingCache is a rating source that keeps entries between cycles.
type RatingCache interface {
	PurgeExpired() int
}

// ModeCatalog resolves game modes and their matchmaking configuration.
type ModeCatalog interface {
	matchmaker.ConfigProvider
	Modes() []matchmaker.Mode
	Mode(name string) (matchmaker.Mode, error)
}

type MatchLauncher interface {
	Launch(ctx context.Context, mode matchmaker.Mode, match matchmaker.Match) (*models.Match, error)
}

// ModeLocker serializes cycles of one mode across instances.
type ModeLocker interface {
	Lock(ctx context.Context, mode string) (func(), error)
}

type EnqueueNotifier interface {
	NotifyGroupEnqueued(ctx context.Context, mode, groupID string) error
}

type ExpiryNotifier interface {
	SendQueueExpired(accountID, mode string)
}

// CycleResult 한 모드의 매칭 사이클 결과
type CycleResult struct {
	Mode    string
	Waiting int
	Matched int
	Expired int
	Skipped bool
	Err     error
}

type MatchmakingOptions struct {
	Interval    time.Duration
	QueueExpiry time.Duration
	Workers     int

	// MaxSnapshotGroups 한 사이클에 엔진에 넘기는 파티 수 상한 (오래 기다린 순). 0이면 제한 없음
	MaxSnapshotGroups int
}

type MatchmakingService struct {
	queue    QueueStore
	ratings  RatingPrefetcher
	modes    ModeCatalog
	launcher MatchLauncher
	logger   *zap.Logger

	locker   ModeLocker
	events   EnqueueNotifier
	expiries ExpiryNotifier

	casual *matchmaker.Engine
	ranked *matchmaker.Engine

	interval    time.Duration
	queueExpiry time.Duration
	workers     int
	maxSnapshot int
	now         func() time.Time

	// 같은 인스턴스 안에서 모드별 사이클 중복 방지
	modeLocks sync.Map

	triggers chan string
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	queue QueueStore,
	ratings RatingPrefetcher,
	modes ModeCatalog,
	launcher MatchLauncher,
	opts MatchmakingOptions,
	logger *zap.Logger,
) *MatchmakingService {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	return &MatchmakingService{
		queue:       queue,
		ratings:     ratings,
		modes:       modes,
		launcher:    launcher,
		logger:      logger.Named("matchmaking"),
		casual:      matchmaker.NewCasualEngine(ratings, modes),
		ranked:      matchmaker.NewRankedEngine(ratings, modes),
		interval:    opts.Interval,
		queueExpiry: opts.QueueExpiry,
		workers:     opts.Workers,
		maxSnapshot: opts.MaxSnapshotGroups,
		now:         time.Now,
		triggers:    make(chan string, 64),
		stopChan:    make(chan struct{}),
	}
}

// SetModeLocker 여러 인스턴스가 같은 큐를 처리할 때 사용
func (s *MatchmakingService) SetModeLocker(locker ModeLocker) {
	s.locker = locker
}

// SetEnqueueNotifier 큐 진입 이벤트를 다른 인스턴스에 전파
func (s *MatchmakingService) SetEnqueueNotifier(events EnqueueNotifier) {
	s.events = events
}

func (s *MatchmakingService) SetExpiryNotifier(expiries ExpiryNotifier) {
	s.expiries = expiries
}

// Start 매칭 시스템 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService",
		zap.Duration("interval", s.interval),
		zap.Int("workers", s.workers))

	s.wg.Add(1)
	go s.matchmakingLoop()
}

// Stop 매칭 시스템 중지. 진행 중인 사이클이 끝날 때까지 기다린다.
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// Trigger 다음 틱을 기다리지 않고 해당 모드 매칭 요청. 요청이 밀려 있으면 버린다.
func (s *MatchmakingService) Trigger(mode string) {
	select {
	case s.triggers <- mode:
	default:
		s.logger.Debug("Trigger dropped", zap.String("mode", mode))
	}
}

func (s *MatchmakingService) matchmakingLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopChan
		cancel()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case name := <-s.triggers:
			mode, err := s.modes.Mode(name)
			if err != nil {
				s.logger.Warn("Trigger for unknown mode", zap.String("mode", name))
				continue
			}
			s.logResult(s.matchMode(ctx, mode))
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce 등록된 모든 모드를 워커 풀에서 한 사이클씩 매칭
func (s *MatchmakingService) RunOnce(ctx context.Context) []CycleResult {
	modes := s.modes.Modes()
	results := make([]CycleResult, len(modes))

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		s.logger.Error("Failed to create worker pool, running sequentially", zap.Error(err))
		for i, mode := range modes {
			results[i] = s.matchMode(ctx, mode)
			s.logResult(results[i])
		}
		s.purgeRatings()
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, mode := range modes {
		i, mode := i, mode
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.matchMode(ctx, mode)
		}); err != nil {
			wg.Done()
			results[i] = CycleResult{Mode: mode.Name, Err: err}
		}
	}
	wg.Wait()

	for _, result := range results {
		s.logResult(result)
	}
	s.purgeRatings()
	return results
}

// purgeRatings 사이클마다 만료된 레이팅 캐시 정리
func (s *MatchmakingService) purgeRatings() {
	cache, ok := s.ratings.(RatingCache)
	if !ok {
		return
	}
	if purged := cache.PurgeExpired(); purged > 0 {
		s.logger.Debug("Purged expired ratings", zap.Int("count", purged))
	}
}

func (s *MatchmakingService) logResult(result CycleResult) {
	switch {
	case result.Err != nil:
		s.logger.Error("Matchmaking cycle failed",
			zap.String("mode", result.Mode),
			zap.Error(result.Err))
	case result.Matched > 0 || result.Expired > 0:
		s.logger.Info("Matchmaking completed",
			zap.String("mode", result.Mode),
			zap.Int("waiting", result.Waiting),
			zap.Int("matched", result.Matched),
			zap.Int("expired", result.Expired))
	}
}

func (s *MatchmakingService) modeLock(mode string) *sync.Mutex {
	lock, _ := s.modeLocks.LoadOrStore(mode, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// matchMode 한 모드의 사이클: 만료 정리 → 스냅샷 → 랭킹 → 선택 → 실행
func (s *MatchmakingService) matchMode(ctx context.Context, mode matchmaker.Mode) CycleResult {
	result := CycleResult{Mode: mode.Name}

	local := s.modeLock(mode.Name)
	if !local.TryLock() {
		result.Skipped = true
		return result
	}
	defer local.Unlock()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, mode.Name)
		if errors.Is(err, distributed.ErrLockNotAcquired) {
			result.Skipped = true
			return result
		}
		if err != nil {
			result.Err = fmt.Errorf("failed to lock mode: %w", err)
			return result
		}
		defer unlock()
	}

	result.Expired = s.expireStale(ctx, mode)

	ranked, groups, err := s.rank(ctx, mode)
	if err != nil {
		result.Err = err
		return result
	}
	result.Waiting = len(groups)

	for _, candidate := range matchmaker.SelectNonOverlapping(ranked) {
		if ctx.Err() != nil {
			break
		}
		if s.launch(ctx, mode, candidate) {
			result.Matched++
		}
	}
	return result
}

func (s *MatchmakingService) expireStale(ctx context.Context, mode matchmaker.Mode) int {
	if s.queueExpiry <= 0 {
		return 0
	}

	expired, err := s.queue.ExpireStale(ctx, mode.Name, s.queueExpiry)
	if err != nil {
		s.logger.Error("Failed to expire stale groups",
			zap.String("mode", mode.Name),
			zap.Error(err))
		return 0
	}

	if s.expiries != nil {
		for _, group := range expired {
			for _, accountID := range group.MemberAccountIDs {
				s.expiries.SendQueueExpired(accountID, mode.Name)
			}
		}
	}
	return len(expired)
}

// rank 대기 중인 파티로 스냅샷을 만들어 엔진 실행
func (s *MatchmakingService) rank(ctx context.Context, mode matchmaker.Mode) ([]matchmaker.Match, []models.QueuedGroup, error) {
	waiting, err := s.queue.GetWaitingGroups(ctx, mode.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get waiting groups: %w", err)
	}

	snapshot := oldestFirst(waiting, s.maxSnapshot)
	if len(snapshot) < len(waiting) {
		s.logger.Debug("Snapshot capped",
			zap.String("mode", mode.Name),
			zap.Int("waiting", len(waiting)),
			zap.Int("snapshot", len(snapshot)))
	}

	players := 0
	groups := make([]matchmaker.Group, 0, len(snapshot))
	var accountIDs []string
	for _, g := range snapshot {
		groups = append(groups, g.ToGroup())
		accountIDs = append(accountIDs, g.MemberAccountIDs...)
		players += len(g.MemberAccountIDs)
	}

	if players < mode.TeamAPlayers+mode.TeamBPlayers {
		if players > 0 {
			s.logger.Debug("Not enough players for matching",
				zap.String("mode", mode.Name),
				zap.Int("players", players))
		}
		return nil, waiting, nil
	}

	if err := s.ratings.Prefetch(ctx, mode.RatingKey, accountIDs); err != nil {
		return nil, waiting, err
	}

	engine := s.casual
	if mode.Ranked {
		engine = s.ranked
	}
	return engine.GetMatchesRanked(matchmaker.Snapshot{Mode: mode, Groups: groups}, s.now()), waiting, nil
}

// oldestFirst 오래 기다린 순으로 최대 limit개. limit <= 0이면 전부
func oldestFirst(waiting []models.QueuedGroup, limit int) []models.QueuedGroup {
	if limit <= 0 || len(waiting) <= limit {
		return waiting
	}
	sorted := append([]models.QueuedGroup(nil), waiting...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QueuedAt.Before(sorted[j].QueuedAt)
	})
	return sorted[:limit]
}

// launch 파티를 선점한 뒤 실행. 실패하면 파티를 대기열로 되돌린다.
func (s *MatchmakingService) launch(ctx context.Context, mode matchmaker.Mode, candidate matchmaker.Match) bool {
	groupIDs := candidate.GroupIDs()

	if err := s.queue.MarkAsMatched(ctx, groupIDs...); err != nil {
		if errors.Is(err, repository.ErrGroupsUnavailable) {
			s.logger.Debug("Candidate groups left the queue",
				zap.String("mode", mode.Name),
				zap.Strings("groups", groupIDs))
		} else {
			s.logger.Error("Failed to claim groups",
				zap.String("mode", mode.Name),
				zap.Error(err))
		}
		return false
	}

	if _, err := s.launcher.Launch(ctx, mode, candidate); err != nil {
		s.logger.Error("Failed to launch match",
			zap.String("mode", mode.Name),
			zap.Strings("groups", groupIDs),
			zap.Error(err))
		if releaseErr := s.queue.ReleaseGroups(ctx, groupIDs...); releaseErr != nil {
			s.logger.Error("Failed to release groups",
				zap.Strings("groups", groupIDs),
				zap.Error(releaseErr))
		}
		return false
	}
	return true
}

// Preview 현재 큐 상태에서 엔진이 내놓는 후보를 상위 limit개까지 반환 (실행하지 않음)
func (s *MatchmakingService) Preview(ctx context.Context, modeName string, limit int) ([]matchmaker.Match, error) {
	mode, err := s.lookupMode(modeName)
	if err != nil {
		return nil, err
	}

	ranked, _, err := s.rank(ctx, mode)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// EnqueueGroup 파티를 큐에 넣는다
func (s *MatchmakingService) EnqueueGroup(ctx context.Context, modeName string, accountIDs []string) (*models.QueuedGroup, error) {
	mode, err := s.lookupMode(modeName)
	if err != nil {
		return nil, err
	}
	if err := validateGroup(mode, accountIDs); err != nil {
		return nil, err
	}

	group, err := s.queue.EnqueueGroup(ctx, mode.Name, accountIDs)
	if errors.Is(err, repository.ErrAccountAlreadyQueued) {
		return nil, ErrAlreadyQueued
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Group queued",
		zap.String("groupId", group.ID),
		zap.String("mode", mode.Name),
		zap.Int("size", len(accountIDs)))

	if s.events != nil {
		if err := s.events.NotifyGroupEnqueued(ctx, mode.Name, group.ID); err != nil {
			s.logger.Warn("Failed to publish enqueue event", zap.Error(err))
			s.Trigger(mode.Name)
		}
	} else {
		s.Trigger(mode.Name)
	}
	return group, nil
}

// CancelGroup 파티를 큐에서 뺀다
func (s *MatchmakingService) CancelGroup(ctx context.Context, groupID string) error {
	err := s.queue.RemoveGroup(ctx, groupID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrGroupNotQueued
	}
	return err
}

// GetGroup 파티 조회
func (s *MatchmakingService) GetGroup(ctx context.Context, groupID string) (*models.QueuedGroup, error) {
	group, err := s.queue.FindGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	return group, nil
}

// ListWaiting 모드의 대기 중인 파티 목록
func (s *MatchmakingService) ListWaiting(ctx context.Context, modeName string) ([]models.QueuedGroup, error) {
	mode, err := s.lookupMode(modeName)
	if err != nil {
		return nil, err
	}
	return s.queue.GetWaitingGroups(ctx, mode.Name)
}

// Modes 등록된 모드 목록
func (s *MatchmakingService) Modes() []matchmaker.Mode {
	return s.modes.Modes()
}

func (s *MatchmakingService) lookupMode(name string) (matchmaker.Mode, error) {
	mode, err := s.modes.Mode(name)
	if errors.Is(err, config.ErrUnknownMode) {
		return matchmaker.Mode{}, fmt.Errorf("%w: %s", ErrModeNotFound, name)
	}
	return mode, err
}

func validateGroup(mode matchmaker.Mode, accountIDs []string) error {
	if len(accountIDs) == 0 {
		return fmt.Errorf("%w: no members", ErrInvalidGroup)
	}

	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if id == "" {
			return fmt.Errorf("%w: empty account id", ErrInvalidGroup)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidGroup, id)
		}
		seen[id] = true
	}

	// 파티는 한 팀에 통째로 들어가야 한다
	largestTeam := mode.TeamAPlayers
	if mode.TeamBPlayers > largestTeam {
		largestTeam = mode.TeamBPlayers
	}
	if len(accountIDs) > largestTeam {
		return fmt.Errorf("%w: %d > team size %d", ErrGroupTooLarge, len(accountIDs), largestTeam)
	}
	if mode.MaxGroupSize > 0 && len(accountIDs) > mode.MaxGroupSize {
		return fmt.Errorf("%w: %d > %d", ErrGroupTooLarge, len(accountIDs), mode.MaxGroupSize)
	}
	return nil
}
