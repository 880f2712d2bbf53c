package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/foodforall-dc/delivery-api/internal/dto"
	"github.com/foodforall-dc/delivery-api/internal/middleware"
	"github.com/foodforall-dc/delivery-api/internal/models"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
	"github.com/foodforall-dc/delivery-api/pkg/response"
)

// SeriesVersionHeader carries the series version after a mutation.
const SeriesVersionHeader = "X-Series-Version"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

func userID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func scopeFromQuery(c *gin.Context) (models.MutationScope, error) {
	scope, ok := models.ParseMutationScope(c.Query("scope"))
	if !ok {
		return "", appErrors.Validation("invalid scope", map[string]string{"scope": "must be this, following or all"})
	}
	return scope, nil
}

// expectedVersion reads the optimistic concurrency token from If-Match or the expectedVersion query
// parameter. Zero means the caller did not ask for a check.
func expectedVersion(c *gin.Context) (int, error) {
	raw := strings.Trim(strings.TrimSpace(c.GetHeader("If-Match")), `"`)
	if raw == "" {
		raw = c.Query("expectedVersion")
	}
	if raw == "" {
		return 0, nil
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version < 0 {
		return 0, appErrors.Validation("invalid version", map[string]string{"expectedVersion": "must be a non-negative integer"})
	}
	return version, nil
}

// writeMutation renders a series mutation. A result that comes with an error is rendered with
// both, so clients see what was and was not applied.
func writeMutation(c *gin.Context, status int, result *dto.MutationResult, err error) {
	if result != nil && result.SeriesVersion > 0 {
		c.Header(SeriesVersionHeader, strconv.Itoa(result.SeriesVersion))
	}
	if err != nil {
		if result != nil {
			response.Partial(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, status, result)
}

func bindError(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg)
}
