package proofs

import (
	"context"
	"net/http"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"
	"adspace/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

// SubmitProof godoc
// @Summary      Owner submits installation proof
// @Tags         proofs
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "Booking ID"
// @Param        request  body  SubmitProofRequest  true  "Proof photos"
// @Success      201  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /bookings/{id}/proof [post]
func (ctrl *Controller) SubmitProof(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	var req SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	proof, err := ctrl.service.Submit(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Proof submitted", proof)
}

// GetProof handles GET /api/v1/bookings/:id/proof
func (ctrl *Controller) GetProof(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	proof, err := ctrl.service.Get(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Proof retrieved", proof)
}

// MarkUnderReview handles POST /api/v1/bookings/:id/proof/review
func (ctrl *Controller) MarkUnderReview(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	proof, err := ctrl.service.MarkUnderReview(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Proof under review", proof)
}

// ApproveProof godoc
// @Summary      Advertiser approves installation proof
// @Tags         proofs
// @Produce      json
// @Param        id  path  string  true  "Booking ID"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      409  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /bookings/{id}/proof/approve [post]
func (ctrl *Controller) ApproveProof(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	proof, err := ctrl.service.Approve(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Proof approved", proof)
}

// RequestCorrection handles POST /api/v1/bookings/:id/proof/request-correction
func (ctrl *Controller) RequestCorrection(c *gin.Context) {
	ctrl.decide(c, ctrl.service.RequestCorrection, "Correction requested")
}

// RejectProof handles POST /api/v1/bookings/:id/proof/reject
func (ctrl *Controller) RejectProof(c *gin.Context) {
	ctrl.decide(c, ctrl.service.Reject, "Proof rejected")
}

type decision = func(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req ReviewRequest) (*BookingProof, error)

func (ctrl *Controller) decide(c *gin.Context, fn decision, message string) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	proof, err := fn(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, message, proof)
}
