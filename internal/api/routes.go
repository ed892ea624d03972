package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title FieldSync API
// @version 1.0
// @description Operational API for the field-service sync engine
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/entities", h.ListEntities)

		tenants := v1.Group("/tenants/:tenantID")
		{
			tenants.POST("/sync", h.TriggerSync)
			tenants.GET("/sync-status", h.GetSyncStatus)
		}
	}

	return r
}
