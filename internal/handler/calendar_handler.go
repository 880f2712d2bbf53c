package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/middleware"
	"github.com/foodforall-dc/delivery-api/pkg/response"
)

type calendarService interface {
	View(ctx context.Context, q dto.CalendarQuery) (*dto.CalendarView, bool, error)
}

// CalendarHandler serves the read model behind the day and month calendars.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler builds a new handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// View godoc
// @Summary Calendar view
// @Description Deliveries and per-day capacity for one day or a whole month.
// @Tags Calendar
// @Produce json
// @Param start query string false "Anchor date (YYYY-MM-DD), defaults to today"
// @Param view query string false "DAY or MONTH" default(DAY)
// @Param clientId query string false "Only this client's deliveries"
// @Param driverId query string false "Only this driver's deliveries"
// @Success 200 {object} response.Envelope
// @Router /calendar [get]
func (h *CalendarHandler) View(c *gin.Context) {
	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "invalid calendar query"))
		return
	}
	view, cached, err := h.service.View(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}
