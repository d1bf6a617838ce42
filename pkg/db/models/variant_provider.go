package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// VariantProvider is one vendor offer for a variant, unique on (provider code, provider sku).
type VariantProvider struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VariantID    uuid.UUID          `gorm:"column:variant_id;type:uuid;not null;index"`
	ProviderCode enums.ProviderCode `gorm:"column:provider_code;type:text;not null;uniqueIndex:ux_variant_providers_code_sku,priority:1"`
	ProviderSKU  string             `gorm:"column:provider_sku;type:text;not null;uniqueIndex:ux_variant_providers_code_sku,priority:2"`
	Price        int64              `gorm:"column:price;not null"`
	IsActive     bool               `gorm:"column:is_active;not null"`
	LastUpdated  time.Time          `gorm:"column:last_updated;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (p *VariantProvider) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
