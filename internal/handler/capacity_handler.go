package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/service"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
	"github.com/foodforall-dc/delivery-api/pkg/response"
)

const (
	maxCapacityRangeDays = 366
	streamHeartbeat      = 25 * time.Second
)

type capacityService interface {
	DayCapacities(ctx context.Context, from, to time.Time) ([]models.DayCapacity, error)
	WeeklyDefaults(ctx context.Context) (models.WeeklyLimits, error)
	SetOverride(ctx context.Context, date time.Time, limit int) (*models.DailyLimit, error)
	ApplyOverrides(ctx context.Context, days []time.Time, limit int) ([]string, error)
	SetWeekdayDefault(ctx context.Context, day time.Weekday, limit int) (models.WeeklyLimits, error)
	RewriteWeekdayDefaults(ctx context.Context, days []time.Time, limit int, confirm bool) (models.WeeklyLimits, []time.Weekday, error)
	SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityWriteResult, error)
}

type capacitySubscriber interface {
	Subscribe(buffer int) (*service.CapacitySubscription, error)
}

// CapacityHandler exposes daily limit endpoints and the live capacity stream.
type CapacityHandler struct {
	service   capacityService
	hub       capacitySubscriber
	buffer    int
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewCapacityHandler builds a new handler. buffer sizes each stream subscription.
func NewCapacityHandler(service capacityService, hub capacitySubscriber, buffer int, logger *zap.Logger) *CapacityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityHandler{service: service, hub: hub, buffer: buffer, heartbeat: streamHeartbeat, logger: logger}
}

// List godoc
// @Summary Daily capacity for a date range
// @Tags Capacity
// @Produce json
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD), defaults to from"
// @Success 200 {object} response.Envelope
// @Router /capacity [get]
func (h *CapacityHandler) List(c *gin.Context) {
	from, err := queryDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to := from
	if c.Query("to") != "" {
		if to, err = queryDate(c, "to"); err != nil {
			response.Error(c, err)
			return
		}
	}
	if to.Before(from) || len(dates.Range(from, to)) > maxCapacityRangeDays {
		response.Error(c, appErrors.Validation("invalid range", map[string]string{"to": "must be on or after from and within a year"}))
		return
	}
	days, err := h.service.DayCapacities(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days)
}

// Weekly godoc
// @Summary Weekday default limits
// @Tags Capacity
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /capacity/weekly [get]
func (h *CapacityHandler) Weekly(c *gin.Context) {
	weekly, err := h.service.WeeklyDefaults(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weekly)
}

// SetOverride godoc
// @Summary Override the limit of one date
// @Tags Capacity
// @Accept json
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param payload body dto.LimitRequest true "Limit"
// @Success 200 {object} response.Envelope
// @Router /capacity/overrides/{date} [put]
func (h *CapacityHandler) SetOverride(c *gin.Context) {
	date, err := dates.Parse(c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Validation("invalid date", map[string]string{"date": err.Error()}))
		return
	}
	limit, ok := bindLimit(c)
	if !ok {
		return
	}
	row, err := h.service.SetOverride(c.Request.Context(), date, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// BulkOverride godoc
// @Summary Override the limit of several dates
// @Description Weekday defaults are left untouched. Use /capacity/weekly/rewrite to change them.
// @Tags Capacity
// @Accept json
// @Produce json
// @Param payload body dto.BulkOverrideRequest true "Dates and limit"
// @Success 200 {object} response.Envelope
// @Router /capacity/overrides [post]
func (h *CapacityHandler) BulkOverride(c *gin.Context) {
	var req dto.BulkOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid override payload"))
		return
	}
	if req.Limit == nil {
		response.Error(c, appErrors.Validation("limit is required", map[string]string{"limit": "required"}))
		return
	}
	days, err := parseDates("dates", req.Dates)
	if err != nil {
		response.Error(c, err)
		return
	}
	applied, err := h.service.ApplyOverrides(c.Request.Context(), days, *req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CapacityWriteResult{Mode: dto.CapacityModeDateOverride, Limit: *req.Limit, Dates: applied})
}

// SetWeekday godoc
// @Summary Change one weekday default
// @Tags Capacity
// @Accept json
// @Produce json
// @Param weekday path string true "Weekday name"
// @Param payload body dto.LimitRequest true "Limit"
// @Success 200 {object} response.Envelope
// @Router /capacity/weekly/{weekday} [put]
func (h *CapacityHandler) SetWeekday(c *gin.Context) {
	day, err := dates.ParseWeekday(c.Param("weekday"))
	if err != nil {
		response.Error(c, appErrors.Validation("invalid weekday", map[string]string{"weekday": err.Error()}))
		return
	}
	limit, ok := bindLimit(c)
	if !ok {
		return
	}
	weekly, err := h.service.SetWeekdayDefault(c.Request.Context(), day, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weekly)
}

// RewriteWeekdays godoc
// @Summary Rewrite weekday defaults from a set of dates
// @Description Changes the default of every weekday the dates fall on. Requires confirm=true.
// @Tags Capacity
// @Accept json
// @Produce json
// @Param payload body dto.RewriteWeekdayDefaultsRequest true "Dates, limit and confirmation"
// @Success 200 {object} response.Envelope
// @Failure 428 {object} response.Envelope
// @Router /capacity/weekly/rewrite [post]
func (h *CapacityHandler) RewriteWeekdays(c *gin.Context) {
	var req dto.RewriteWeekdayDefaultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rewrite payload"))
		return
	}
	if req.Limit == nil {
		response.Error(c, appErrors.Validation("limit is required", map[string]string{"limit": "required"}))
		return
	}
	days, err := parseDates("dates", req.Dates)
	if err != nil {
		response.Error(c, err)
		return
	}
	weekly, weekdays, err := h.service.RewriteWeekdayDefaults(c.Request.Context(), days, *req.Limit, req.Confirm)
	if err != nil {
		response.Error(c, err)
		return
	}
	result := dto.CapacityWriteResult{Mode: dto.CapacityModeWeekdayDefault, Limit: *req.Limit, Weekly: &weekly}
	for _, day := range weekdays {
		result.Weekdays = append(result.Weekdays, dates.WeekdayName(day))
	}
	response.JSON(c, http.StatusOK, result)
}

// Set godoc
// @Summary Apply a capacity write
// @Description DATE_OVERRIDE changes the given dates only. WEEKDAY_DEFAULT changes a weekday default and is limited to administrators.
// @Tags Capacity
// @Accept json
// @Produce json
// @Param payload body dto.SetCapacityRequest true "Capacity write"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 428 {object} response.Envelope
// @Router /capacity [post]
func (h *CapacityHandler) Set(c *gin.Context) {
	var req dto.SetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid capacity payload"))
		return
	}
	if req.Mode == dto.CapacityModeWeekdayDefault {
		if claims := claimsFromContext(c); claims == nil || claims.Role != models.RoleAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only administrators may change weekday defaults"))
			return
		}
	}
	result, err := h.service.SetCapacity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Stream godoc
// @Summary Live capacity changes
// @Description Server-sent events. "capacity" carries a change, "lagged" tells the client to refetch because changes were dropped.
// @Tags Capacity
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /capacity/stream [get]
func (h *CapacityHandler) Stream(c *gin.Context) {
	sub, err := h.hub.Subscribe(h.buffer)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "capacity stream unavailable"))
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	h.logger.Debug("capacity stream opened", zap.String("user_id", userID(c)))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-sub.C:
			if !ok {
				return false
			}
			if sub.Lagged() {
				c.SSEvent("lagged", gin.H{"refetch": true})
			}
			c.SSEvent("capacity", change)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
	h.logger.Debug("capacity stream closed", zap.String("user_id", userID(c)))
}

func bindLimit(c *gin.Context) (int, bool) {
	var req dto.LimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid limit payload"))
		return 0, false
	}
	if req.Limit == nil {
		response.Error(c, appErrors.Validation("limit is required", map[string]string{"limit": "required"}))
		return 0, false
	}
	return *req.Limit, true
}

func queryDate(c *gin.Context, name string) (time.Time, error) {
	d, err := dates.Parse(c.Query(name))
	if err != nil {
		return time.Time{}, appErrors.Validation("invalid date", map[string]string{name: err.Error()})
	}
	return d, nil
}

func parseDates(field string, raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, appErrors.Validation("at least one date is required", map[string]string{field: "required"})
	}
	out := make([]time.Time, 0, len(raw))
	for _, value := range raw {
		d, err := dates.Parse(value)
		if err != nil {
			return nil, appErrors.Validation("invalid date", map[string]string{field: err.Error()})
		}
		out = append(out, d)
	}
	return out, nil
}
