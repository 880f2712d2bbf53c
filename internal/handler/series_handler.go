package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/response"
)

type seriesService interface {
	CreateSeries(ctx context.Context, req dto.CreateSeriesRequest) (*dto.MutationResult, error)
	GetSeries(ctx context.Context, id string) (*dto.SeriesDetail, error)
	EditSeries(ctx context.Context, eventID string, scope models.MutationScope, req dto.EditSeriesRequest) (*dto.MutationResult, error)
	DeleteSeries(ctx context.Context, eventID string, scope models.MutationScope, expectedVersion int) (*dto.MutationResult, error)
}

// SeriesHandler exposes delivery series endpoints.
type SeriesHandler struct {
	service seriesService
}

// NewSeriesHandler builds a new handler.
func NewSeriesHandler(service seriesService) *SeriesHandler {
	return &SeriesHandler{service: service}
}

// Create godoc
// @Summary Create a delivery series
// @Description Expands the recurrence and books one delivery per date. Dates the client already has a delivery on are skipped and answered with 207.
// @Tags Series
// @Accept json
// @Produce json
// @Param payload body dto.CreateSeriesRequest true "Series payload"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /series [post]
func (h *SeriesHandler) Create(c *gin.Context) {
	var req dto.CreateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid series payload"))
		return
	}
	result, err := h.service.CreateSeries(c.Request.Context(), req)
	writeMutation(c, http.StatusCreated, result, err)
}

// Get godoc
// @Summary Get a delivery series
// @Tags Series
// @Produce json
// @Param id path string true "Series ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /series/{id} [get]
func (h *SeriesHandler) Get(c *gin.Context) {
	detail, err := h.service.GetSeries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Edit godoc
// @Summary Edit a delivery event
// @Description scope=this moves only the event. scope=following regenerates the event and every later one of its series.
// @Tags Series
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param scope query string false "this or following" default(this)
// @Param If-Match header string false "Expected series version"
// @Param payload body dto.EditSeriesRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [put]
func (h *SeriesHandler) Edit(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.EditSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid edit payload"))
		return
	}
	if req.ExpectedVersion == 0 {
		if req.ExpectedVersion, err = expectedVersion(c); err != nil {
			response.Error(c, err)
			return
		}
	}
	result, err := h.service.EditSeries(c.Request.Context(), c.Param("id"), scope, req)
	writeMutation(c, http.StatusOK, result, err)
}

// Delete godoc
// @Summary Delete delivery events
// @Tags Series
// @Produce json
// @Param id path string true "Event ID"
// @Param scope query string false "this, following or all" default(this)
// @Param If-Match header string false "Expected series version"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *SeriesHandler) Delete(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	version, err := expectedVersion(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.DeleteSeries(c.Request.Context(), c.Param("id"), scope, version)
	writeMutation(c, http.StatusOK, result, err)
}
