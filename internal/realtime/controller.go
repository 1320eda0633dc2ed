package realtime

import (
	"adspace/internal/bookings"
	"adspace/internal/shared/middleware"
	"adspace/internal/shared/utils/response"
	"adspace/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	hub      *Hub
	bookings bookings.Service
	logger   *logger.Logger
}

func NewController(hub *Hub, bookingService bookings.Service, log *logger.Logger) *Controller {
	return &Controller{hub: hub, bookings: bookingService, logger: log}
}

// StreamBooking upgrades to a websocket that pushes status and timeline
// changes of one booking.
// @Summary Booking event stream
// @Tags bookings
// @Param id path string true "Booking ID"
// @Param access_token query string false "Bearer token for clients that cannot set headers"
// @Success 101
// @Router /bookings/{id}/stream [get]
func (ctrl *Controller) StreamBooking(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}

	// Authorization runs before the upgrade so failures stay plain JSON.
	booking, err := ctrl.bookings.Get(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.logger.WithError(err).Warn("websocket upgrade failed", "booking_id", id)
		return
	}

	ctrl.hub.Serve(conn, booking.ID, string(booking.Status))
}
