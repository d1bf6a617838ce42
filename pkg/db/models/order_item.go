package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// OrderItem is one line of an order. A nil ProviderStatus means fulfillment
// has not produced an outcome yet.
type OrderItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID      uuid.UUID             `gorm:"column:variant_id;type:uuid;not null"`
	Variant        *ProductVariant       `gorm:"foreignKey:VariantID"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	UnitPrice      int64                 `gorm:"column:unit_price;not null"`
	Subtotal       int64                 `gorm:"column:subtotal;not null"`
	Target         *string               `gorm:"column:target;type:text"`
	Note           *string               `gorm:"column:note;type:text"`
	ProviderCode   *enums.ProviderCode   `gorm:"column:provider_code;type:text"`
	ProviderStatus *enums.ProviderStatus `gorm:"column:provider_status;type:text"`
	ProviderTrxID  *string               `gorm:"column:provider_trx_id;type:text"`
	SN             *string               `gorm:"column:sn;type:text"`
	FulfilledAt    *time.Time            `gorm:"column:fulfilled_at"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// Succeeded reports whether the item was delivered successfully.
func (i OrderItem) Succeeded() bool {
	return i.ProviderStatus != nil && *i.ProviderStatus == enums.ProviderStatusSuccess
}

// Failed reports whether the item carries a confirmed failure.
func (i OrderItem) Failed() bool {
	return i.ProviderStatus != nil && *i.ProviderStatus == enums.ProviderStatusFailed
}
