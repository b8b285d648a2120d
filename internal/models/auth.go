package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system. Tokens are
// issued by the platform's auth service; this API only validates them.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleStudent    UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// CanManageEnrollments reports whether the role may mutate the ledger.
func (c *JWTClaims) CanManageEnrollments() bool {
	if c == nil {
		return false
	}
	return c.Role == RoleAdmin || c.Role == RoleSuperAdmin
}
