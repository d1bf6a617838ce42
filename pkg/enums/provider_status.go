package enums

import "fmt"

// ProviderStatus is the canonical per-item fulfillment outcome. Vendor
// vocabularies are translated into it at the adapter boundary.
type ProviderStatus string

const (
	ProviderStatusSuccess               ProviderStatus = "SUCCESS"
	ProviderStatusPending               ProviderStatus = "PENDING"
	ProviderStatusFailed                ProviderStatus = "FAILED"
	ProviderStatusInsufficientInventory ProviderStatus = "INSUFFICIENT_INVENTORY"
)

var validProviderStatuses = []ProviderStatus{
	ProviderStatusSuccess,
	ProviderStatusPending,
	ProviderStatusFailed,
	ProviderStatusInsufficientInventory,
}

func (s ProviderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProviderStatus.
func (s ProviderStatus) IsValid() bool {
	for _, candidate := range validProviderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProviderStatus converts raw input into a ProviderStatus.
func ParseProviderStatus(value string) (ProviderStatus, error) {
	for _, candidate := range validProviderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider status %q", value)
}
