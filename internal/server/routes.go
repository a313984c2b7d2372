package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mhai/internal/models"
)

// Surface paths.
const (
	ChatPath  = "/api/mhai-chat/"
	DiaryPath = "/api/my-diary/"
)

// registerRoutes sets up all backend routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.RedirectTrailingSlash = false

	router.GET("/healthz", s.handleHealth)
	router.POST("/api/auth/session/", s.handleLogin)

	api := router.Group("/api", s.requireSession, s.requireCSRF)
	api.GET("/csrf/", s.handleCSRF)
	api.DELETE("/auth/session/", s.handleLogout)
	api.GET("/mhai-chat/", s.handleList(models.SurfaceChat))
	api.POST("/mhai-chat/", s.handleCreate(models.SurfaceChat))
	api.GET("/my-diary/", s.handleList(models.SurfaceDiary))
	api.POST("/my-diary/", s.handleCreate(models.SurfaceDiary))
}

func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abortDetail(c *gin.Context, code int, detail string) {
	c.AbortWithStatusJSON(code, gin.H{"detail": detail})
}
