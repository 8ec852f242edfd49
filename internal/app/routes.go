package app

import (
	"net/http"
	"time"

	"github.com/ctc-chat/core/internal/middleware"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
	"github.com/ctc-chat/core/internal/modules/realtime"
	"github.com/ctc-chat/core/internal/modules/realtime/state"
	"github.com/ctc-chat/core/internal/modules/voice"
	"github.com/gin-gonic/gin"
)

var processStart = time.Now()

func (a *App) registerRoutes(members *membership.Service, store state.Store, issuer media.Issuer) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	root := r.Group("")
	realtime.RegisterRoutes(root, a.gateway)

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(processStart).Round(time.Second).String(),
		})
	})
	api.GET("/gateway/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections": a.registry.Count(),
		})
	})

	authed := api.Group("", middleware.Auth())
	voice.NewHandler(members, store, issuer).RegisterRoutes(authed)
}
