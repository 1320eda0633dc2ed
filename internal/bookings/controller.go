package bookings

import (
	"net/http"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/middleware"
	"adspace/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CreateBooking godoc
// @Summary      Request a booking of a space for a campaign
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Param        request  body  CreateBookingRequest  true  "Booking request"
// @Success      201  {object}  response.StandardApiResponse
// @Failure      409  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /bookings [post]
func (ctrl *Controller) CreateBooking(c *gin.Context) {
	act, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	booking, err := ctrl.service.Create(c.Request.Context(), act, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Booking requested", booking)
}

// GetBooking handles GET /api/v1/bookings/:id
func (ctrl *Controller) GetBooking(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	booking, err := ctrl.service.Get(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking retrieved", booking)
}

// GetBookingStatus handles GET /api/v1/bookings/:id/status
func (ctrl *Controller) GetBookingStatus(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	status, err := ctrl.service.Status(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking status retrieved", status)
}

// ListCampaignBookings handles GET /api/v1/campaigns/:id/bookings
func (ctrl *Controller) ListCampaignBookings(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	list, err := ctrl.service.ListByCampaign(c.Request.Context(), act, id, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Bookings retrieved", list)
}

// ApproveBooking godoc
// @Summary      Owner approves a pending booking
// @Tags         bookings
// @Produce      json
// @Param        id  path  string  true  "Booking ID"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /bookings/{id}/approve [post]
func (ctrl *Controller) ApproveBooking(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	booking, err := ctrl.service.Approve(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking approved", booking)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject
func (ctrl *Controller) RejectBooking(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	booking, err := ctrl.service.Reject(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking rejected", booking)
}

// DeclineBooking handles POST /api/v1/bookings/:id/decline
func (ctrl *Controller) DeclineBooking(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	booking, err := ctrl.service.Decline(c.Request.Context(), act, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking declined", booking)
}

// MarkFileDownloaded handles POST /api/v1/bookings/:id/file-downloaded
func (ctrl *Controller) MarkFileDownloaded(c *gin.Context) {
	act, id, ok := actorAndID(c)
	if !ok {
		return
	}
	booking, err := ctrl.service.MarkFileDownloaded(c.Request.Context(), act, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Creative download recorded", booking)
}

func actorAndID(c *gin.Context) (actor.Actor, uuid.UUID, bool) {
	return middleware.ActorAndParam(c, "id")
}
