package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/adapter/http/middleware"
)

type RouterDeps struct {
	NotificationHandler *NotificationHandler
	HealthHandler       *HealthHandler
	WebSocketHandler    *WebSocketHandler
	Logger              *zap.Logger
	CORSAllowedOrigins  []string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.CORS(deps.CORSAllowedOrigins))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logging(deps.Logger))

	r.GET("/health", deps.HealthHandler.Readiness)
	r.GET("/health/live", deps.HealthHandler.Liveness)
	r.GET("/health/ready", deps.HealthHandler.Readiness)

	r.GET("/ws", deps.WebSocketHandler.Handle)

	api := r.Group("/")
	api.Use(middleware.RateLimit(200))
	{
		api.POST("/notification", deps.NotificationHandler.Create)
		api.GET("/notification/status/:correlation_id", deps.NotificationHandler.GetStatus)
		api.GET("/notification/events/:correlation_id", deps.NotificationHandler.GetEvents)

		api.GET("/notifications/:id", deps.NotificationHandler.GetByID)
		api.POST("/notifications/:id/status", deps.NotificationHandler.StatusCallback)
		api.DELETE("/notifications/:id", deps.NotificationHandler.Delete)

		api.GET("/users/:user_id/notifications", deps.NotificationHandler.ListUserHistory)
		api.GET("/stats/channels", deps.NotificationHandler.ChannelStats)
	}

	return r
}
