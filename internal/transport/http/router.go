// Package httptransport 提供被动 Web 入口：只读收件箱页面、
// 查询 API、健康检查和指标端点。
package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项。
type RouterDependencies struct {
	Config       *config.Config
	Directory    *directory.Service
	WebSocketHub *websocket.Hub
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		dir: deps.Directory,
		log: log,
	}

	// 健康检查：liveness 恒活，readiness 看存储
	health := healthcheck.NewHandler()
	health.AddReadinessCheck("store", deps.Directory.Health)
	router.GET("/live", gin.WrapF(health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(health.ReadyEndpoint))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", handler.Index)
	router.GET("/api/messages", handler.ListMessages)

	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.Handler(deps.WebSocketHub))
	}

	return router
}

// requestLogger 按 zap 记录请求日志。
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
