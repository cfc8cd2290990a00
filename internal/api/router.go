package api

import (
	"github.com/gin-gonic/gin"
	"github.com/tdkkdt/EvoS-sub002/internal/api/handlers"
	"github.com/tdkkdt/EvoS-sub002/internal/api/middleware"
	"github.com/tdkkdt/EvoS-sub002/internal/config"
	"github.com/tdkkdt/EvoS-sub002/internal/websocket"
	jwtutil "github.com/tdkkdt/EvoS-sub002/pkg/jwt"
	"github.com/tdkkdt/EvoS-sub002/pkg/ratelimit"
)

// Dependencies 라우터가 사용하는 서비스 묶음
type Dependencies struct {
	Config         *config.Config
	JWT            *jwtutil.JWTManager
	Queue          handlers.QueueService
	Matches        handlers.MatchGetter
	Hub            *websocket.Hub
	EnqueueLimiter ratelimit.Limiter
	HealthChecks   map[string]handlers.HealthCheck
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	queueHandler := handlers.NewQueueHandler(deps.Queue)
	matchHandler := handlers.NewMatchHandler(deps.Matches)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, cfg.CORSAllowedOrigins)

	canRead := middleware.RequireService(deps.JWT, jwtutil.ScopeQueueRead)
	canWrite := middleware.RequireService(deps.JWT, jwtutil.ScopeQueueWrite)

	// Health check
	router.GET("/health", healthHandler.Health)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// 게임 클라이언트 매칭 알림
		v1.GET("/ws", middleware.RequireAccount(deps.JWT), wsHandler.HandleWebSocket)

		// Queue routes (lobby server)
		queue := v1.Group("/queue")
		{
			enqueue := []gin.HandlerFunc{canWrite}
			if deps.EnqueueLimiter != nil {
				enqueue = append(enqueue, middleware.RateLimit(deps.EnqueueLimiter, middleware.DefaultKeyFunc))
			}
			enqueue = append(enqueue, queueHandler.EnqueueGroup)

			queue.POST("", enqueue...)
			queue.DELETE("/:groupId", canWrite, queueHandler.CancelGroup)
			queue.GET("/groups/:groupId", canRead, queueHandler.GetGroup)
			queue.GET("/:mode", canRead, queueHandler.ListWaiting)
		}

		// Matchmaking routes
		matchmaking := v1.Group("/matchmaking")
		matchmaking.Use(canRead)
		{
			matchmaking.GET("/modes", queueHandler.ListModes)
			matchmaking.GET("/matches/:id", matchHandler.GetMatch)
			matchmaking.GET("/:mode/preview", queueHandler.Preview)
		}
	}

	return router
}
