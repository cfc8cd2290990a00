package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tdkkdt/EvoS-sub002/internal/api"
	"github.com/tdkkdt/EvoS-sub002/internal/api/handlers"
	"github.com/tdkkdt/EvoS-sub002/internal/config"
	"github.com/tdkkdt/EvoS-sub002/internal/repository"
	"github.com/tdkkdt/EvoS-sub002/internal/service"
	"github.com/tdkkdt/EvoS-sub002/internal/websocket"
	"github.com/tdkkdt/EvoS-sub002/pkg/database"
	"github.com/tdkkdt/EvoS-sub002/pkg/distributed"
	jwtutil "github.com/tdkkdt/EvoS-sub002/pkg/jwt"
	"github.com/tdkkdt/EvoS-sub002/pkg/logger"
	"github.com/tdkkdt/EvoS-sub002/pkg/ratelimit"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting matchmaker",
		"port", cfg.Port,
		"env", cfg.Env,
		"interval", cfg.MatchmakingInterval,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 데이터베이스 연결
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	// Redis 연결
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid REDIS_URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancelPing()
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	logger.Info("Redis connection established")

	// 게임 모드
	registry, err := config.LoadModeRegistry(cfg.MatchmakingModesPath)
	if err != nil {
		logger.Fatal("Failed to load game modes", "path", cfg.MatchmakingModesPath, "error", err)
	}
	for _, mode := range registry.Modes() {
		logger.Info("Game mode registered",
			"mode", mode.Name,
			"teamA", mode.TeamAPlayers,
			"teamB", mode.TeamBPlayers,
			"ranked", mode.Ranked,
		)
	}

	// Repository 초기화
	queueRepo := repository.NewMatchmakingRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub(logger.Named("websocket"))
	go wsHub.Run(ctx)

	// Service 초기화
	launchQueue := distributed.NewRedisQueue(redisClient, cfg.LaunchQueueName, 0)
	ratingService := service.NewRatingService(ratingRepo, cfg.RatingCacheTTL)
	matchService := service.NewMatchService(matchRepo, queueRepo, launchQueue, wsHub, logger.L())

	matchmakingService := service.NewMatchmakingService(
		queueRepo,
		ratingService,
		registry,
		matchService,
		service.MatchmakingOptions{
			Interval:    cfg.MatchmakingInterval,
			QueueExpiry: cfg.QueueExpiry,
			Workers:     cfg.MatchmakingWorkers,

			MaxSnapshotGroups: cfg.MaxSnapshotGroups,
		},
		logger.L(),
	)
	matchmakingService.SetExpiryNotifier(wsHub)

	// 여러 인스턴스가 같은 큐를 처리하는 경우
	var enqueueLimiter ratelimit.Limiter
	var coordinator *distributed.MatchmakingCoordinator
	if cfg.UseDistributedLock {
		matchmakingService.SetModeLocker(distributed.NewModeLocker(redisClient, 2*cfg.MatchmakingInterval+10*time.Second))

		coordinator = distributed.NewMatchmakingCoordinator(redisClient, logger.Named("coordinator"))
		matchmakingService.SetEnqueueNotifier(coordinator)
		go func() {
			err := coordinator.Start(ctx, func(event distributed.MatchmakingEvent) {
				matchmakingService.Trigger(event.Mode)
			})
			if err != nil {
				logger.Error("Matchmaking coordinator stopped", "error", err)
			}
		}()
		defer coordinator.Stop()

		enqueueLimiter = ratelimit.NewRedisRateLimiter(redisClient, "ratelimit:enqueue:", cfg.EnqueueRatePerMinute, time.Minute)
		logger.Info("Distributed matchmaking enabled")
	} else {
		memoryLimiter := ratelimit.NewPerMinuteLimiter(cfg.EnqueueRatePerMinute, cfg.EnqueueBurst)
		defer memoryLimiter.Stop()
		enqueueLimiter = memoryLimiter
	}

	matchmakingService.Start()
	defer matchmakingService.Stop()

	// 라우터 설정
	router := api.SetupRouter(api.Dependencies{
		Config:         cfg,
		JWT:            jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		Queue:          matchmakingService,
		Matches:        matchService,
		Hub:            wsHub,
		EnqueueLimiter: enqueueLimiter,
		HealthChecks: map[string]handlers.HealthCheck{
			"database": db.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// SIGHUP: 모드 설정 재적용, SIGINT/SIGTERM: 종료
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		if err := registry.Reload(); err != nil {
			logger.Error("Failed to reload game modes, keeping previous configuration", "error", err)
			continue
		}
		logger.Info("Game modes reloaded", "count", len(registry.Modes()))

		// 새 설정으로 모든 인스턴스가 바로 한 사이클 돌도록 요청
		for _, mode := range registry.Modes() {
			if coordinator == nil {
				matchmakingService.Trigger(mode.Name)
				continue
			}
			if err := coordinator.NotifyMatchingRequested(ctx, mode.Name); err != nil {
				logger.Warn("Failed to request matching", "mode", mode.Name, "error", err)
				matchmakingService.Trigger(mode.Name)
			}
		}
	}

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
