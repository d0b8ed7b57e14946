package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/health/queues", handler.QueueBacklog)

	v1 := router.Group("/api/v1")
	v1.Use(TenantMiddleware())
	{
		devices := v1.Group("/devices")
		devices.POST("", handler.CreateDevice)
		devices.GET("", handler.ListDevices)
		devices.GET("/:id", handler.GetDevice)
		devices.PUT("/:id", handler.UpdateDevice)
		devices.DELETE("/:id", handler.DeleteDevice)
		devices.PUT("/:id/status", handler.UpdateDeviceStatus)

		devices.POST("/:id/enrollments", handler.EnrollStudent)
		devices.GET("/:id/enrollments", handler.ListEnrollments)
		v1.DELETE("/enrollments/:id", handler.DeleteEnrollment)

		devices.POST("/:id/sync", handler.SyncDevice)
		devices.POST("/:id/imports", handler.UploadImport)
		devices.GET("/:id/sync/pending", handler.GetPendingSyncs)
		v1.GET("/sync/statistics", handler.GetSyncStatistics)
	}
}
