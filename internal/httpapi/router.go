package httpapi

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the health check and the v1 session API.
func SetupRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/transcript", h.Transcript)
		v1.POST("/submit", h.Submit)
		v1.POST("/reset", h.Reset)
		v1.GET("/export", h.Export)
		v1.POST("/import", h.Import)
		v1.GET("/meta", h.Meta)
		v1.GET("/persona", h.Persona)
	}
}

// NewEngine builds a gin engine with recovery, request logging and the
// session routes.
func NewEngine(h *Handler, release bool) *gin.Engine {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	SetupRoutes(router, h)
	return router
}
