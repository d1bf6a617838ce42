package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Order is a customer checkout. It is only mutated by fulfillment and refunds.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceCode  string            `gorm:"column:invoice_code;type:text;not null;uniqueIndex:ux_orders_invoice_code"`
	UserID       uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status       enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	TotalAmount  int64             `gorm:"column:total_amount;not null"`
	PaidAt       *time.Time        `gorm:"column:paid_at"`
	DeliveredAt  *time.Time        `gorm:"column:delivered_at"`
	CanceledAt   *time.Time        `gorm:"column:canceled_at"`
	CancelReason *string           `gorm:"column:cancel_reason;type:text"`
	Items        []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
