package payments

import (
	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes configures checkout and the processor webhook. The
// webhook is authenticated by its signature, not by a bearer token.
func SetupPaymentRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	checkout := rg.Group("/checkout")
	checkout.Use(auth, middleware.RequireRoles(actor.RoleAdvertiser))
	{
		checkout.POST("/sessions", controller.CreateCheckoutSession)
	}

	rg.POST("/payments/webhook", controller.HandleWebhook)
}
