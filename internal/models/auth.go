package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles recognised on delivery scheduling routes.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleStaff      UserRole = "STAFF"
	RoleCaseWorker UserRole = "CASE_WORKER"
)

// CanSchedule reports whether the role may create, edit or delete deliveries.
func (r UserRole) CanSchedule() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCaseWorker:
		return true
	default:
		return false
	}
}

// JWTClaims represents the access token payload issued by the authentication service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
