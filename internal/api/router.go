package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/lambdachat/internal/api/middleware"
	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/internal/ws"
)

// RouterConfig holds everything the HTTP routes depend on
type RouterConfig struct {
	Engine            *chat.Engine
	Sessions          *middleware.Sessions
	Stream            bool     // the page streams replies over the websocket
	AllowedOrigins    []string // CORS and websocket origins; empty allows any
	MessagesPerMinute int      // per websocket connection
	IPLimiter         *middleware.RateLimiter
	SessionLimiter    *middleware.RateLimiter
}

// NewRouter builds the gin engine serving the chat page, REST API and websocket
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.CORS(cfg.AllowedOrigins...))
	router.Use(middleware.SecurityHeaders())
	if cfg.IPLimiter != nil {
		router.Use(middleware.PerIP(cfg.IPLimiter))
	}

	router.GET("/health", func(c *gin.Context) {
		state, failures := cfg.Engine.BreakerStats()
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"time":              time.Now().Unix(),
			"upstream":          state.String(),
			"upstream_failures": failures,
		})
	})

	sessions := cfg.Sessions.Middleware()

	NewPageHandler(cfg.Engine, cfg.Stream).RegisterRoutes(router, sessions)

	apiGroup := router.Group("/api", sessions)
	if cfg.SessionLimiter != nil {
		apiGroup.Use(middleware.PerSession(cfg.SessionLimiter))
	}
	NewConversationHandler(cfg.Engine, cfg.Sessions).RegisterRoutes(apiGroup)

	chatHandler := ws.NewChatHandler(cfg.Engine, cfg.MessagesPerMinute, cfg.AllowedOrigins...)
	router.GET("/ws/chat", sessions, chatHandler.HandleChat)

	return router
}
