package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"autoreply/backend/internal/config"
	"autoreply/backend/internal/health"
	"autoreply/backend/internal/middleware"
	"autoreply/backend/internal/monitoring"
	"autoreply/backend/internal/service"
	"autoreply/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	DraftService  *service.DraftService
	TriggerIntake func()             // 请求立即执行一轮收件
	WebSocketHub  *websocket.Hub     // 可为 nil
	Metrics       *monitoring.Metrics // 可为 nil
	Health        *health.Checker    // 可为 nil
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
//
// 健康检查与指标端点不做认证；评审页面、草稿 API 与 WebSocket
// 均在操作员 BasicAuth 之后。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(1 * 1024 * 1024))
	router.Use(middleware.HTTPMetrics(deps.Metrics))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.SetHTMLTemplate(reviewTemplate)

	handler := &Handler{
		drafts:  deps.DraftService,
		trigger: deps.TriggerIntake,
	}

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/healthz", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/readyz", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 操作员认证之后的评审面
	authorized := router.Group("/", gin.BasicAuth(gin.Accounts{
		deps.Config.Auth.Username: deps.Config.Auth.Password,
	}))
	{
		authorized.GET("/drafts", handler.reviewPage)

		v1 := authorized.Group("/api/v1")
		{
			v1.GET("/drafts", handler.listDrafts)
			v1.GET("/drafts/:id", handler.getDraft)
			v1.PUT("/drafts/:id", handler.updateDraft)
			v1.POST("/drafts/:id/send", handler.sendDraft)
			v1.POST("/drafts/:id/reject", handler.rejectDraft)
			v1.POST("/intake/trigger", handler.triggerIntake)
		}

		if deps.WebSocketHub != nil {
			authorized.GET("/ws", deps.WebSocketHub.HandleWS)
		}
	}

	return router
}
