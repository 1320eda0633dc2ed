package realtime

import (
	"github.com/gin-gonic/gin"
)

// SetupStreamRoutes mounts the booking stream. auth should accept the token
// from the query string since browsers cannot set headers on websockets.
func SetupStreamRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	stream := rg.Group("/bookings")
	stream.Use(auth)
	{
		stream.GET("/:id/stream", controller.StreamBooking)
	}
}
