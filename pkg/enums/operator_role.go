package enums

import "fmt"

// OperatorRole is carried by operator JWTs.
type OperatorRole string

const (
	OperatorRoleAdmin    OperatorRole = "admin"
	OperatorRoleOperator OperatorRole = "operator"
)

// IsValid reports whether the value is a known OperatorRole.
func (r OperatorRole) IsValid() bool {
	return r == OperatorRoleAdmin || r == OperatorRoleOperator
}

// ParseOperatorRole converts raw input into an OperatorRole.
func ParseOperatorRole(value string) (OperatorRole, error) {
	role := OperatorRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid operator role %q", value)
	}
	return role, nil
}
