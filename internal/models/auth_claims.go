package models

import "github.com/golang-jwt/jwt/v5"

// Roles carried in the JWT issued by the identity service.
const (
	RoleDispatcher = "dispatcher"
	RoleTechnician = "technician"
)

type JwtCustomClaims struct {
	SubjectID string `json:"subjectID"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}
