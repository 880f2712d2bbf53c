package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/service"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/protected", handlers...)
	return r
}

func serve(r *gin.Engine, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresValidBearerToken(t *testing.T) {
	tokens := validatorStub{
		"admin-token": {UserID: "u-1", Role: models.RoleAdmin},
		"staff-token": {UserID: "u-2", Role: models.RoleStaff},
	}
	r := newTestRouter(JWT(tokens), RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "Bearer nope").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/protected", "Bearer staff-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/protected", "Bearer admin-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/protected?access_token=admin-token", "").Code)
}

func TestRequireSchedulerRejectsUnknownRole(t *testing.T) {
	tokens := validatorStub{
		"worker": {UserID: "u-3", Role: models.RoleCaseWorker},
		"guest":  {UserID: "u-4", Role: models.UserRole("GUEST")},
	}
	r := newTestRouter(JWT(tokens), RequireScheduler())

	assert.Equal(t, http.StatusNoContent, serve(r, "/protected", "Bearer worker").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/protected", "Bearer guest").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	r := newTestRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/protected", "").Code)
}

func TestCurrentUser(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := CurrentUser(c)
	assert.False(t, ok)

	c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-1"})
	claims, ok := CurrentUser(c)
	require.True(t, ok)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/cached", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := serve(r, "/cached", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Nil(t, ExtractMeta(nil))
	SetCacheHit(nil, false)
}

func TestMetricsMiddlewareObservesRoute(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newTestRouter(Metrics(metrics))
	serve(r, "/protected", "")

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	r = newTestRouter(Metrics(nil))
	assert.Equal(t, http.StatusNoContent, serve(r, "/protected", "").Code)
}

func TestMetricsMiddlewareSkipsRoutesAndGroupsUnknownPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/series/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "/metrics", "")
	serve(r, "/series/a", "")
	serve(r, "/series/b", "")
	serve(r, "/missing/1", "")
	serve(r, "/missing/2", "")

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	totals := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					totals[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"/series/:id": 2, "unmatched": 2}, totals)
}
