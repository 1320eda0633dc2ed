package proofs

import (
	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupProofRoutes configures proof submission and review routes
func SetupProofRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	proof := rg.Group("/bookings/:id/proof")
	proof.Use(auth)
	{
		proof.GET("", controller.GetProof)
		proof.POST("", middleware.RequireRoles(actor.RoleOwner, actor.RoleAdmin), controller.SubmitProof)

		reviewers := proof.Group("", middleware.RequireRoles(actor.RoleAdvertiser, actor.RoleAdmin))
		reviewers.POST("/review", controller.MarkUnderReview)
		reviewers.POST("/approve", controller.ApproveProof)
		reviewers.POST("/request-correction", controller.RequestCorrection)
		reviewers.POST("/reject", controller.RejectProof)
	}
}
