package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// ProductVariant is a sellable SKU. Price is the resale price, OriginalPrice
// the cost at the routed vendor, BestProvider the cached routing decision and
// Stock the cached count of AVAILABLE digital stock.
type ProductVariant struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	Product       *Product            `gorm:"foreignKey:ProductID"`
	Name          string              `gorm:"column:name;type:text;not null"`
	SKU           *string             `gorm:"column:sku;type:text"`
	Price         int64               `gorm:"column:price;not null;default:0"`
	OriginalPrice int64               `gorm:"column:original_price;not null;default:0"`
	BestProvider  *enums.ProviderCode `gorm:"column:best_provider;type:text"`
	Stock         int                 `gorm:"column:stock;not null;default:0"`
	DeliveryType  enums.DeliveryType  `gorm:"column:delivery_type;type:text;not null"`
	Providers     []VariantProvider   `gorm:"foreignKey:VariantID"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
