package enums

import "fmt"

// DeliveryType describes how a variant is delivered.
type DeliveryType string

const (
	DeliveryStocked   DeliveryType = "STOCKED"
	DeliveryManual    DeliveryType = "MANUAL"
	DeliveryAutomated DeliveryType = "AUTOMATED"
)

var validDeliveryTypes = []DeliveryType{
	DeliveryStocked,
	DeliveryManual,
	DeliveryAutomated,
}

// IsValid reports whether the value is a known DeliveryType.
func (d DeliveryType) IsValid() bool {
	for _, candidate := range validDeliveryTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryType converts raw input into a DeliveryType.
func ParseDeliveryType(value string) (DeliveryType, error) {
	for _, candidate := range validDeliveryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery type %q", value)
}
