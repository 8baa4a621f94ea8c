package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/extract/trigger", handler.TriggerExtract)
		v1.POST("/load/trigger", handler.TriggerLoad)
		v1.GET("/runs/:run_id", handler.GetRunStatus)
	}
}
