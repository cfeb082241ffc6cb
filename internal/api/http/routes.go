package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes bundles what RegisterRoutes needs beyond the handlers
type Routes struct {
	// Metrics serves /metrics when set
	Metrics http.Handler
	// RequireSession guards /download and /jobs/ws when authentication is enabled
	RequireSession gin.HandlerFunc
	// JobFeed serves the WebSocket job progress stream when set
	JobFeed gin.HandlerFunc
}

// RegisterRoutes mounts every endpoint on router
func RegisterRoutes(router gin.IRouter, h *Handlers, routes Routes) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	if routes.Metrics != nil {
		router.GET("/metrics", gin.WrapH(routes.Metrics))
	}

	var guard []gin.HandlerFunc
	if routes.RequireSession != nil && h.auth != nil {
		guard = append(guard, routes.RequireSession)
		router.POST("/auth/login", h.Login)
		router.POST("/auth/logout", h.Logout)
	}
	router.POST("/download", append(guard, h.Download)...)

	if routes.JobFeed != nil {
		router.GET("/jobs/ws", append(guard, routes.JobFeed)...)
	}
}
