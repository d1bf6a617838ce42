package enums

import (
	"fmt"
	"strings"
)

// CategoryType decides which fulfillment channel delivers a product.
type CategoryType string

const (
	CategoryDigital CategoryType = "DIGITAL"
	CategoryGame    CategoryType = "GAME"
	CategoryPulsa   CategoryType = "PULSA"
	CategorySosmed  CategoryType = "SOSMED"
	CategoryOther   CategoryType = "OTHER"
)

var validCategoryTypes = []CategoryType{
	CategoryDigital,
	CategoryGame,
	CategoryPulsa,
	CategorySosmed,
	CategoryOther,
}

// IsValid reports whether the value is a known CategoryType.
func (c CategoryType) IsValid() bool {
	for _, candidate := range validCategoryTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// UsesStockPool reports whether items are delivered from pre-provisioned stock.
func (c CategoryType) UsesStockPool() bool {
	return c == CategoryDigital
}

// UsesProvider reports whether items are delivered by an external vendor.
func (c CategoryType) UsesProvider() bool {
	switch c {
	case CategoryGame, CategoryPulsa, CategorySosmed:
		return true
	}
	return false
}

// ParseCategoryType converts raw input into a CategoryType, ignoring case.
func ParseCategoryType(value string) (CategoryType, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validCategoryTypes {
		if string(candidate) == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid category type %q", value)
}
