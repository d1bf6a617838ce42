package enums

import (
	"fmt"
	"strings"
)

// ProviderCode identifies an upstream vendor.
type ProviderCode string

const (
	ProviderDigiflazz   ProviderCode = "DIGIFLAZZ"
	ProviderTokoVoucher ProviderCode = "TOKOVOUCHER"
	ProviderAPIGames    ProviderCode = "APIGAMES"
	ProviderMedanPedia  ProviderCode = "MEDANPEDIA"
)

var validProviderCodes = []ProviderCode{
	ProviderDigiflazz,
	ProviderTokoVoucher,
	ProviderAPIGames,
	ProviderMedanPedia,
}

func (p ProviderCode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderCode.
func (p ProviderCode) IsValid() bool {
	for _, candidate := range validProviderCodes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderCode converts raw input into a ProviderCode, ignoring case.
func ParseProviderCode(value string) (ProviderCode, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validProviderCodes {
		if string(candidate) == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider code %q", value)
}
