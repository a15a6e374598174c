package handlers

import (
	"net/http"
	"time"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/metrics"
	"oee-copilot/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterDeps はルーターが必要とする依存です。
type RouterDeps struct {
	Copilot     Copilot
	Sessions    SessionStore
	Importer    Importer
	Stats       StatsProvider
	Monitoring  *services.MonitoringService
	Metrics     *metrics.Metrics
	Maintenance *Maintenance
	Logger      *logger.Logger

	APIKey        string
	AdminUsername string
	AdminPassword string
}

// NewRouter はGinエンジンを組み立てます。cmd/server と api/ の両方から使います。
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Maintenance == nil {
		deps.Maintenance = &Maintenance{}
	}
	if deps.Monitoring == nil {
		deps.Monitoring = services.NewMonitoringService(deps.Metrics)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(deps.Monitoring.LoggingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:              []string{"Origin", "Content-Type", "Authorization", "X-API-KEY"},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}))

	// Originヘッダーの無いプリフライトもボディ無しの200で返す
	r.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/health", HealthCheck(deps.Maintenance))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	chatHandler := NewChatHandler(deps.Copilot, deps.Logger)
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Logger)
	logHandler := NewLogHandler(deps.Importer, deps.Stats, deps.Logger)
	adminHandler := NewAdminHandler(deps.AdminUsername, deps.AdminPassword, deps.Maintenance, deps.Logger)
	monitoringHandler := NewMonitoringHandler(deps.Monitoring)

	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(deps.APIKey))
	{
		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/oee/summary", chatHandler.Summary)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.PATCH("/:id", sessionHandler.Rename)
			sessions.GET("/:id/messages", sessionHandler.Messages)
		}

		logs := v1.Group("/logs")
		{
			logs.POST("/import", logHandler.Import)
			logs.GET("/stats", logHandler.Stats)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}
	return r
}
