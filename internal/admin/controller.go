package admin

import (
	"net/http"

	"adspace/internal/disputes"
	"adspace/internal/payments"
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

func meta(c *gin.Context, param string) (Meta, uuid.UUID, bool) {
	act, id, ok := middleware.ActorAndParam(c, param)
	if !ok {
		return Meta{}, id, false
	}
	return Meta{Actor: act, IP: c.ClientIP()}, id, true
}

// ApproveBooking handles POST /api/v1/admin/bookings/:id/approve
func (ctrl *Controller) ApproveBooking(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	booking, err := ctrl.service.ApproveBooking(c.Request.Context(), m, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking approved", booking)
}

// RejectBooking handles POST /api/v1/admin/bookings/:id/reject
func (ctrl *Controller) RejectBooking(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	booking, err := ctrl.service.RejectBooking(c.Request.Context(), m, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Booking rejected", booking)
}

// IssueRefund godoc
// @Summary      Refund part or all of a booking's payments
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "Booking ID"
// @Param        request  body  payments.RefundRequest  true  "Refund"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      400  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/bookings/{id}/refund [post]
func (ctrl *Controller) IssueRefund(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	var req payments.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	refunds, err := ctrl.service.IssueRefund(c.Request.Context(), m, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Refund processed", refunds)
}

// RetryPayout godoc
// @Summary      Retry the earliest failed, partial or stuck payout of a booking
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Booking ID"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/bookings/{id}/retry-payout [post]
func (ctrl *Controller) RetryPayout(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	payout, err := ctrl.service.RetryPayout(c.Request.Context(), m, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Payout attempt recorded", payout)
}

// RetryRefunds godoc
// @Summary      Reconcile and resend refunds the processor never confirmed
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Booking ID"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      400  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/bookings/{id}/retry-refund [post]
func (ctrl *Controller) RetryRefunds(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	refunds, err := ctrl.service.RetryRefunds(c.Request.Context(), m, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Refund attempt recorded", refunds)
}

// RetryBalanceCharge handles POST /api/v1/admin/bookings/:id/retry-balance
func (ctrl *Controller) RetryBalanceCharge(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	booking, err := ctrl.service.RetryBalanceCharge(c.Request.Context(), m, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Balance charge attempt recorded", booking)
}

// ApproveProof handles POST /api/v1/admin/bookings/:id/proof/approve
func (ctrl *Controller) ApproveProof(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	proof, err := ctrl.service.ApproveProof(c.Request.Context(), m, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Proof approved", proof)
}

// RejectProof handles POST /api/v1/admin/bookings/:id/proof/reject
func (ctrl *Controller) RejectProof(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	proof, err := ctrl.service.RejectProof(c.Request.Context(), m, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Proof rejected", proof)
}

// ResolveDispute godoc
// @Summary      Resolve an open dispute
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id       path  string                   true  "Dispute ID"
// @Param        request  body  disputes.ResolveRequest  true  "Resolution"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/disputes/{id}/resolve [post]
func (ctrl *Controller) ResolveDispute(c *gin.Context) {
	m, id, ok := meta(c, "id")
	if !ok {
		return
	}
	var req disputes.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	dispute, err := ctrl.service.ResolveDispute(c.Request.Context(), m, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Dispute resolved", dispute)
}

// GetTimeline godoc
// @Summary      Ordered payment-flow events of a booking
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Booking ID"
// @Success      200  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/bookings/{id}/timeline [get]
func (ctrl *Controller) GetTimeline(c *gin.Context) {
	_, id, ok := meta(c, "id")
	if !ok {
		return
	}
	timeline, err := ctrl.service.Timeline(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Timeline retrieved", timeline)
}

// GetActions handles GET /api/v1/admin/bookings/:id/actions
func (ctrl *Controller) GetActions(c *gin.Context) {
	_, id, ok := meta(c, "id")
	if !ok {
		return
	}
	actions, err := ctrl.service.Actions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Admin actions retrieved", actions)
}

// ListPaymentFlows godoc
// @Summary      Payment flows with summary and suggested overrides
// @Tags         admin
// @Produce      json
// @Param        status         query  string  false  "Booking status"
// @Param        payout_status  query  string  false  "Payout status"
// @Param        search         query  string  false  "Space name, location or booking id"
// @Param        page           query  int     false  "Page"
// @Param        limit          query  int     false  "Page size"
// @Success      200  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/payment-flows [get]
func (ctrl *Controller) ListPaymentFlows(c *gin.Context) {
	var q PaymentFlowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	list, err := ctrl.service.ListPaymentFlows(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Payment flows retrieved", list)
}
