package payments

import (
	"net/http"

	"adspace/internal/processor"
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

// CreateCheckoutSession godoc
// @Summary      Open a hosted checkout for approved bookings
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request  body  CheckoutRequest  true  "Bookings to pay"
// @Success      201  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /checkout/sessions [post]
func (ctrl *Controller) CreateCheckoutSession(c *gin.Context) {
	act, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	result, err := ctrl.service.CreateCheckoutSession(c.Request.Context(), act, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	response.OK(c, status, "Checkout session ready", result)
}

// HandleWebhook godoc
// @Summary      Receive payment processor events
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Processor-Signature  header  string  true  "t=<unix>,v1=<hex>"
// @Success      200  {object}  response.StandardApiResponse
// @Failure      400  {object}  response.StandardApiResponse
// @Router       /payments/webhook [post]
func (ctrl *Controller) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "Unable to read request body", err)
		return
	}

	result, err := ctrl.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader(processor.SignatureHeader), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Webhook processed", result)
}
