package admin

import (
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAdminRoutes configures the privileged override API
func SetupAdminRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	admin := rg.Group("/admin")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.GET("/payment-flows", controller.ListPaymentFlows)

		bookings := admin.Group("/bookings/:id")
		{
			bookings.GET("/timeline", controller.GetTimeline)
			bookings.GET("/actions", controller.GetActions)
			bookings.POST("/approve", controller.ApproveBooking)
			bookings.POST("/reject", controller.RejectBooking)
			bookings.POST("/refund", controller.IssueRefund)
			bookings.POST("/retry-payout", controller.RetryPayout)
			bookings.POST("/retry-balance", controller.RetryBalanceCharge)
			bookings.POST("/retry-refund", controller.RetryRefunds)
			bookings.POST("/proof/approve", controller.ApproveProof)
			bookings.POST("/proof/reject", controller.RejectProof)
		}

		admin.POST("/disputes/:id/resolve", controller.ResolveDispute)
	}
}

// Route definitions for reference:
//
// GET    /api/v1/admin/payment-flows                    - Flows with summary and suggested actions
// GET    /api/v1/admin/bookings/:id/timeline            - Ordered payment-flow events
// GET    /api/v1/admin/bookings/:id/actions             - Overrides applied to a booking
// POST   /api/v1/admin/bookings/:id/approve             - Approve on behalf of the owner
// POST   /api/v1/admin/bookings/:id/reject              - Reject on behalf of the owner
// POST   /api/v1/admin/bookings/:id/refund              - Refund part or all of the payments
// POST   /api/v1/admin/bookings/:id/retry-payout        - Retry a failed, partial or stuck payout
// POST   /api/v1/admin/bookings/:id/retry-balance       - Retry a declined balance charge
// POST   /api/v1/admin/bookings/:id/retry-refund        - Reconcile refunds the processor never confirmed
// POST   /api/v1/admin/bookings/:id/proof/approve       - Approve proof on behalf of the advertiser
// POST   /api/v1/admin/bookings/:id/proof/reject        - Reject proof on behalf of the advertiser
// POST   /api/v1/admin/disputes/:id/resolve             - Reinstate, refund or reject a dispute
