package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// OperatorTokenPayload captures the data available when minting an operator JWT.
type OperatorTokenPayload struct {
	OperatorID uuid.UUID
	Name       string
	Role       enums.OperatorRole
	JTI        string
}

// OperatorClaims represents the typed JWT presented to the admin API.
type OperatorClaims struct {
	OperatorID uuid.UUID          `json:"operator_id"`
	Name       string             `json:"name,omitempty"`
	Role       enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}
