package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodforall-dc/delivery-api/internal/models"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

func newAuthForTest() *AuthService {
	return NewAuthService(nil, AuthConfig{AccessTokenSecret: "test-secret", AccessTokenExpiry: 15 * time.Minute, Issuer: "foodforall"})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newAuthForTest()
	token, expires, err := svc.IssueToken("user-1", "staff@example.org", models.RoleStaff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expires, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, "foodforall", claims.Issuer)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newAuthForTest()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := svc.IssueToken("user-1", "", models.RoleAdmin)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Equal(t, "token expired", appErr.Message)
}

func TestValidateTokenRejectsForeignIssuerAndSecret(t *testing.T) {
	svc := newAuthForTest()

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "test-secret", Issuer: "someone-else"})
	token, _, err := other.IssueToken("user-1", "", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	forged := NewAuthService(nil, AuthConfig{AccessTokenSecret: "wrong", Issuer: "foodforall"})
	token, _, err = forged.IssueToken("user-1", "", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newAuthForTest()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "foodforall"}})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRequiresUser(t *testing.T) {
	svc := newAuthForTest()
	token, _, err := svc.IssueToken("", "", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
