package disputes

import (
	"net/http"

	"adspace/internal/shared/middleware"
	"adspace/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

// OpenDispute godoc
// @Summary      Advertiser disputes a booking
// @Tags         disputes
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "Booking ID"
// @Param        request  body  OpenDisputeRequest  true  "Dispute"
// @Success      201  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /bookings/{id}/disputes [post]
func (ctrl *Controller) OpenDispute(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	dispute, err := ctrl.service.Open(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Dispute opened", dispute)
}

// ReportProofIssue handles POST /api/v1/bookings/:id/proof/report
func (ctrl *Controller) ReportProofIssue(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	dispute, err := ctrl.service.ReportProofIssue(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Proof issue reported", dispute)
}

// ListDisputes handles GET /api/v1/bookings/:id/disputes
func (ctrl *Controller) ListDisputes(c *gin.Context) {
	act, id, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	list, err := ctrl.service.ListByBooking(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Disputes retrieved", list)
}
