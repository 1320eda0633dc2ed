package bookings

import (
	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes configures all booking-related routes. auth verifies the
// bearer token; it is passed in so the router decides the token source.
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	bookings := rg.Group("/bookings")
	bookings.Use(auth)
	{
		bookings.POST("", middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin), controller.CreateBooking)
		bookings.GET("/:id", controller.GetBooking)
		bookings.GET("/:id/status", controller.GetBookingStatus)

		// Owner decisions
		bookings.POST("/:id/approve", middleware.RequireRoles(actor.RoleOwner, actor.RoleAdmin), controller.ApproveBooking)
		bookings.POST("/:id/reject", middleware.RequireRoles(actor.RoleOwner, actor.RoleAdmin), controller.RejectBooking)
		bookings.POST("/:id/file-downloaded", middleware.RequireRoles(actor.RoleOwner, actor.RoleAdmin), controller.MarkFileDownloaded)

		// Advertiser withdrawal before payment
		bookings.POST("/:id/decline", middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin), controller.DeclineBooking)
	}

	campaigns := rg.Group("/campaigns")
	campaigns.Use(auth, middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin))
	{
		campaigns.GET("/:id/bookings", controller.ListCampaignBookings)
	}
}

// Route definitions for reference:
//
// POST   /api/v1/bookings                       - Request a booking (advertiser)
// GET    /api/v1/bookings/:id                   - Booking detail (participants, admin)
// GET    /api/v1/bookings/:id/status            - Short-poll status
// POST   /api/v1/bookings/:id/approve           - Owner approves
// POST   /api/v1/bookings/:id/reject            - Owner rejects, reason required
// POST   /api/v1/bookings/:id/decline           - Advertiser withdraws before payment
// POST   /api/v1/bookings/:id/file-downloaded   - Owner fetched the creative
// GET    /api/v1/campaigns/:id/bookings         - Bookings of a campaign
//
// Lifecycle:
// 1. Advertiser requests dates, availability is re-checked under the space lock
// 2. Owner approves, advertiser pays through checkout
// 3. Owner downloads the creative, installs it and submits proof
// 4. Proof is approved (or auto-approved after the review window), payouts run
