package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/middleware"
	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/service"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

type capacityServiceMock struct {
	from, to   time.Time
	override   time.Time
	limit      int
	bulkDays   []time.Time
	confirm    bool
	setReq     *dto.SetCapacityRequest
	rewriteErr error
}

func (m *capacityServiceMock) DayCapacities(ctx context.Context, from, to time.Time) ([]models.DayCapacity, error) {
	m.from, m.to = from, to
	return []models.DayCapacity{{Date: dates.Format(from), Limit: 60, Status: models.CapacityNormal}}, nil
}

func (m *capacityServiceMock) WeeklyDefaults(ctx context.Context) (models.WeeklyLimits, error) {
	return models.WeeklyLimitsFromSlots([7]int{60, 60, 60, 60, 90, 90, 60}), nil
}

func (m *capacityServiceMock) SetOverride(ctx context.Context, date time.Time, limit int) (*models.DailyLimit, error) {
	m.override, m.limit = date, limit
	return &models.DailyLimit{Date: date, Limit: limit}, nil
}

func (m *capacityServiceMock) ApplyOverrides(ctx context.Context, days []time.Time, limit int) ([]string, error) {
	m.bulkDays, m.limit = days, limit
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = dates.Format(d)
	}
	return out, nil
}

func (m *capacityServiceMock) SetWeekdayDefault(ctx context.Context, day time.Weekday, limit int) (models.WeeklyLimits, error) {
	m.limit = limit
	return models.WeeklyLimits{}.With(day, limit), nil
}

func (m *capacityServiceMock) RewriteWeekdayDefaults(ctx context.Context, days []time.Time, limit int, confirm bool) (models.WeeklyLimits, []time.Weekday, error) {
	m.confirm = confirm
	if m.rewriteErr != nil {
		return models.WeeklyLimits{}, nil, m.rewriteErr
	}
	return models.WeeklyLimits{}, []time.Weekday{days[0].Weekday()}, nil
}

func (m *capacityServiceMock) SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityWriteResult, error) {
	m.setReq = &req
	return &dto.CapacityWriteResult{Mode: req.Mode, Limit: *req.Limit}, nil
}

func TestCapacityHandlerListRange(t *testing.T) {
	svc := &capacityServiceMock{}
	c, w := newJSONContext(http.MethodGet, "/capacity?from=2025-03-01&to=2025-03-31", nil)
	NewCapacityHandler(svc, nil, 0, nil).List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dates.Date(2025, time.March, 1), svc.from)
	assert.Equal(t, dates.Date(2025, time.March, 31), svc.to)
}

func TestCapacityHandlerListRejectsBadRange(t *testing.T) {
	for _, target := range []string{
		"/capacity",
		"/capacity?from=2025-03-10&to=2025-03-01",
		"/capacity?from=2024-01-01&to=2025-06-01",
	} {
		c, w := newJSONContext(http.MethodGet, target, nil)
		NewCapacityHandler(&capacityServiceMock{}, nil, 0, nil).List(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestCapacityHandlerSetOverride(t *testing.T) {
	svc := &capacityServiceMock{}
	c, w := newJSONContext(http.MethodPut, "/capacity/overrides/2025-03-10", `{"limit": 0}`)
	c.Params = gin.Params{{Key: "date", Value: "2025-03-10"}}
	NewCapacityHandler(svc, nil, 0, nil).SetOverride(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dates.Date(2025, time.March, 10), svc.override)
	assert.Equal(t, 0, svc.limit)
}

func TestCapacityHandlerSetOverrideRequiresLimit(t *testing.T) {
	c, w := newJSONContext(http.MethodPut, "/capacity/overrides/2025-03-10", `{}`)
	c.Params = gin.Params{{Key: "date", Value: "2025-03-10"}}
	NewCapacityHandler(&capacityServiceMock{}, nil, 0, nil).SetOverride(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapacityHandlerBulkOverride(t *testing.T) {
	svc := &capacityServiceMock{}
	c, w := newJSONContext(http.MethodPost, "/capacity/overrides", `{"dates": ["2025-03-10", "2025-03-17"], "limit": 40}`)
	NewCapacityHandler(svc, nil, 0, nil).BulkOverride(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.bulkDays, 2)
	assert.Equal(t, 40, svc.limit)
}

func TestCapacityHandlerRewriteNeedsConfirmation(t *testing.T) {
	svc := &capacityServiceMock{rewriteErr: appErrors.Clone(appErrors.ErrNotConfirmed, "")}
	c, w := newJSONContext(http.MethodPost, "/capacity/weekly/rewrite", `{"dates": ["2025-03-10"], "limit": 40}`)
	NewCapacityHandler(svc, nil, 0, nil).RewriteWeekdays(c)

	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.False(t, svc.confirm)
}

func TestCapacityHandlerSetWeekday(t *testing.T) {
	svc := &capacityServiceMock{}
	c, w := newJSONContext(http.MethodPut, "/capacity/weekly/friday", `{"limit": 120}`)
	c.Params = gin.Params{{Key: "weekday", Value: "friday"}}
	NewCapacityHandler(svc, nil, 0, nil).SetWeekday(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 120, svc.limit)

	c, w = newJSONContext(http.MethodPut, "/capacity/weekly/someday", `{"limit": 120}`)
	c.Params = gin.Params{{Key: "weekday", Value: "someday"}}
	NewCapacityHandler(svc, nil, 0, nil).SetWeekday(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapacityHandlerSetWeekdayModeNeedsAdmin(t *testing.T) {
	svc := &capacityServiceMock{}
	body := `{"mode": "WEEKDAY_DEFAULT", "weekday": "monday", "limit": 10}`

	c, w := newJSONContext(http.MethodPost, "/capacity", body)
	NewCapacityHandler(svc, nil, 0, nil).Set(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, svc.setReq)

	c, w = newJSONContext(http.MethodPost, "/capacity", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	NewCapacityHandler(svc, nil, 0, nil).Set(c)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.setReq)
	assert.Equal(t, "monday", svc.setReq.Weekday)
}

type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestCapacityHandlerStreamSendsChanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := service.NewCapacityHub(nil, nil)
	handler := NewCapacityHandler(&capacityServiceMock{}, hub, 4, nil)

	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/capacity/stream", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Stream(c)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	limit := 25
	hub.Publish(models.CapacityChange{Kind: models.CapacityChangeOverride, Dates: []string{"2025-03-10"}, Limit: &limit})
	hub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish")
	}
	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(body, "event:capacity"), body)
	assert.Contains(t, body, "2025-03-10")
}

func TestCapacityHandlerStreamUnavailableAfterHubClose(t *testing.T) {
	hub := service.NewCapacityHub(nil, nil)
	hub.Close()
	c, w := newJSONContext(http.MethodGet, "/capacity/stream", nil)
	NewCapacityHandler(&capacityServiceMock{}, hub, 4, nil).Stream(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
