package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/auth"
	"studio/backend/internal/config"
	"studio/backend/internal/health"
	"studio/backend/internal/middleware"
	"studio/backend/internal/monitoring"
	"studio/backend/internal/service"
	"studio/backend/internal/storage"
	"studio/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MessageService *service.MessageService
	AuthService    *auth.Service
	RateLimits     storage.RateLimitRepository // 联系表单限流计数，可为 nil
	Metrics        *monitoring.Metrics
	Health         *health.HealthChecker // 可为 nil
	WebSocketHub   *websocket.Hub        // 可为 nil
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	cfg := deps.Config

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, log)
	contactHandler := NewContactHandler(deps.MessageService, log)
	adminHandler := NewAdminHandler(deps.MessageService, log)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, log)
	contactLimit := middleware.NewRateLimiter(deps.RateLimits, cfg.Contact.RateLimit, cfg.Contact.RateWindow, metrics, log)

	// 静态图片
	if cfg.Static.ImagesDir != "" {
		router.Static("/images", cfg.Static.ImagesDir)
	}

	// 监控与健康检查
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))
	if deps.Health != nil {
		hc := deps.Health
		router.GET("/health", func(c *gin.Context) {
			results, healthy := hc.CheckHealth(c.Request.Context())
			status := http.StatusOK
			if !healthy {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{
				"status": statusText(healthy),
				"checks": results,
			})
		})
		router.GET("/health/live", gin.WrapF(hc.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(hc.ReadyEndpoint))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// ========== Public Routes ==========
	router.POST("/contact", contactLimit.Middleware("contact", MsgContactRateLimited), contactHandler.Submit)

	// ========== Auth Routes ==========
	router.POST("/login", authHandler.Login)
	router.GET("/auth/verify", jwtAuth.RequireAuth(), authHandler.Verify)

	// ========== WebSocket Routes ==========
	// 浏览器无法为 WebSocket 设置请求头，允许 ?token= 传递令牌
	if deps.WebSocketHub != nil && cfg.WebSocket.Enabled {
		router.GET("/admin/ws",
			jwtAuth.RequireAuthAllowQuery(),
			middleware.RequireAdmin(),
			websocket.HandleWebSocket(deps.WebSocketHub),
		)
	}

	// ========== Admin Routes ==========
	adminRoutes := router.Group("/admin")
	adminRoutes.Use(jwtAuth.RequireAuth(), middleware.RequireAdmin())
	{
		adminRoutes.GET("/dashboard", authHandler.Dashboard)

		adminRoutes.GET("/messages", adminHandler.ListMessages)
		adminRoutes.GET("/messages/stats", adminHandler.GetStats)
		adminRoutes.GET("/messages/date-range", adminHandler.MessagesByDateRange)
		adminRoutes.GET("/messages/recent", adminHandler.RecentMessages)
		adminRoutes.GET("/messages/:id", adminHandler.GetMessage)
		adminRoutes.PUT("/messages/:id/status", adminHandler.UpdateStatus)
		adminRoutes.DELETE("/messages/:id", adminHandler.DeleteMessage)
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "Route not found")
	})

	return router
}

func statusText(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}
