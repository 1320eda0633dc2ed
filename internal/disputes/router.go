package disputes

import (
	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupDisputeRoutes configures the participant side of disputes. Resolution
// lives under the admin routes.
func SetupDisputeRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	bookings := rg.Group("/bookings/:id")
	bookings.Use(auth)
	{
		bookings.GET("/disputes", controller.ListDisputes)
		bookings.POST("/disputes", middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin), controller.OpenDispute)
		bookings.POST("/proof/report", middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin), controller.ReportProofIssue)
	}
}
