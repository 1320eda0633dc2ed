package availability

import (
	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAvailabilityRoutes registers the public space read endpoints and the
// owner's blocked-date management.
func SetupAvailabilityRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	spaces := rg.Group("/spaces")
	{
		spaces.GET("/:id/availability", controller.CheckAvailability) // GET /api/v1/spaces/:id/availability
		spaces.GET("/:id/calendar", controller.GetCalendar)           // GET /api/v1/spaces/:id/calendar
	}

	blocked := rg.Group("/spaces/:id/blocked-dates")
	blocked.Use(auth, middleware.RequireRoles(actor.RoleOwner, actor.RoleAdmin))
	{
		blocked.POST("", controller.BlockDates)              // POST /api/v1/spaces/:id/blocked-dates
		blocked.DELETE("/:blockId", controller.UnblockDates) // DELETE /api/v1/spaces/:id/blocked-dates/:blockId
	}
}
