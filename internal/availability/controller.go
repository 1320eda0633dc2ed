package availability

import (
	"net/http"
	"time"

	"adspace/internal/shared/middleware"
	"adspace/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultCalendarDays = 90

type Controller struct {
	checker  *Checker
	calendar *CalendarService
	blocks   *BlockService
}

func NewController(checker *Checker, calendar *CalendarService, blocks *BlockService) *Controller {
	return &Controller{checker: checker, calendar: calendar, blocks: blocks}
}

// CheckAvailability godoc
// @Summary      Check whether a space can be booked for a date range
// @Tags         spaces
// @Produce      json
// @Param        id          path   string  true  "Space ID"
// @Param        start_date  query  string  true  "First day (YYYY-MM-DD)"
// @Param        end_date    query  string  true  "Last day, inclusive (YYYY-MM-DD)"
// @Success      200  {object}  response.StandardApiResponse
// @Router       /spaces/{id}/availability [get]
func (ctrl *Controller) CheckAvailability(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid space ID", err)
		return
	}
	r, err := ParseDateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := ctrl.checker.Check(c.Request.Context(), spaceID, r)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Availability checked", result)
}

// GetCalendar godoc
// @Summary      Booked and blocked ranges of a space
// @Tags         spaces
// @Produce      json
// @Param        id    path   string  true   "Space ID"
// @Param        from  query  string  false  "First day (defaults to today)"
// @Param        to    query  string  false  "Last day (defaults to 90 days out)"
// @Success      200  {object}  response.StandardApiResponse
// @Router       /spaces/{id}/calendar [get]
func (ctrl *Controller) GetCalendar(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid space ID", err)
		return
	}

	from := c.Query("from")
	to := c.Query("to")
	today := StartOfDay(ctrl.checker.clock.Now())
	if from == "" {
		from = today.Format(time.DateOnly)
	}
	if to == "" {
		to = today.AddDate(0, 0, defaultCalendarDays).Format(time.DateOnly)
	}
	r, err := ParseDateRange(from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	cal, err := ctrl.calendar.Calendar(c.Request.Context(), spaceID, r)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Calendar retrieved", cal)
}

// BlockDates godoc
// @Summary      Take whole days of a space off the market
// @Tags         spaces
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string        true  "Space ID"
// @Param        body  body  BlockRequest  true  "Days to block"
// @Success      201  {object}  response.StandardApiResponse
// @Failure      409  {object}  response.StandardApiResponse
// @Router       /spaces/{id}/blocked-dates [post]
func (ctrl *Controller) BlockDates(c *gin.Context) {
	act, spaceID, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	blocked, err := ctrl.blocks.BlockDates(c.Request.Context(), act, spaceID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Dates blocked", blocked)
}

// UnblockDates godoc
// @Summary      Release a blocked range
// @Tags         spaces
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string  true  "Space ID"
// @Param        blockId  path  string  true  "Blocked range ID"
// @Success      200  {object}  response.StandardApiResponse
// @Router       /spaces/{id}/blocked-dates/{blockId} [delete]
func (ctrl *Controller) UnblockDates(c *gin.Context) {
	act, spaceID, ok := middleware.ActorAndParam(c, "id")
	if !ok {
		return
	}
	blockID, err := uuid.Parse(c.Param("blockId"))
	if err != nil {
		response.BadRequest(c, "Invalid blocked range ID", err)
		return
	}

	if err := ctrl.blocks.UnblockDates(c.Request.Context(), act, spaceID, blockID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Dates unblocked", nil)
}
