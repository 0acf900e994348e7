package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/middleware"
	"github.com/wfunc/optical-switch/internal/service"
	ws "github.com/wfunc/optical-switch/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	hub            *ws.Hub
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器，db 可为 nil
func NewRouter(cfg *config.Config, services *service.Services, hub *ws.Hub, db *gorm.DB, log *zap.Logger) *Router {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		hub:            hub,
		authMiddleware: middleware.NewAuthMiddleware(services.Auth, cfg.Security.AuthEnabled),
		log:            log,
	}
	router.setupRoutes(cfg)
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(cfg *config.Config) {
	r.engine.GET("/health", r.healthCheck)

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	authHandler := NewAuthHandler(r.services.Auth)
	switchHandler := NewSwitchHandler(r.services.Switch)
	wsHandler := NewWebSocketHandler(r.hub, &cfg.WebSocket, r.log)

	v1 := r.engine.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
		}

		protected := v1.Group("")
		protected.Use(r.authMiddleware.RequireAuth())
		{
			sw := protected.Group("/switch")
			{
				sw.POST("/scan-all", switchHandler.ScanAll)
				sw.POST("/scan-one", switchHandler.ScanOne)
				sw.POST("/scan-range", switchHandler.ScanRange)
				sw.POST("/debug", switchHandler.Debug)
				sw.POST("/camera-delay", switchHandler.SetCameraDelay)
				sw.GET("/last-command", switchHandler.LastCommand)
			}

			protected.GET("/ports", switchHandler.ListPorts)
			protected.GET("/ws/online", wsHandler.GetOnlineCount)

			if r.services.CommandLogs != nil {
				NewCommandLogAPI(r.services.CommandLogs).RegisterRoutes(protected, r.authMiddleware.RequireRole("admin"))
			}
		}
	}

	path := cfg.WebSocket.Path
	if path == "" {
		path = "/ws/responses"
	}
	r.engine.GET(path, r.authMiddleware.RequireAuth(), wsHandler.Responses)

	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, errors.New(errors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := gin.H{
		"status":       "healthy",
		"session_id":   r.services.Switch.SessionID(),
		"ws_clients":   r.hub.GetOnlineCount(),
		"last_command": r.services.Switch.LastCommand(),
	}

	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			status["status"] = "unhealthy"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}

	c.JSON(http.StatusOK, status)
}

// Handler 返回 HTTP 处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
