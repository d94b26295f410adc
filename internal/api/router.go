package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facesessions/internal/api/handlers"
	"github.com/your-org/facesessions/internal/api/ws"
	"github.com/your-org/facesessions/internal/auth"
)

type RouterConfig struct {
	Sessions handlers.SessionService
	Limits   handlers.UploadLimits
	// Hub serves /v1/api/ws when set.
	Hub *ws.Hub
	// Checks are probed by /readyz, keyed by dependency name.
	Checks map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (userid header required)
	v1 := r.Group("/v1/api")
	v1.Use(auth.UserIDMiddleware())

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	sessionH := handlers.NewSessionHandler(cfg.Sessions, cfg.Limits)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.POST("/sessions", sessionH.Create)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, "userid")
	return c
}
