package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// DigitalStock is one deliverable credential. Rows are flipped to USED by a
// stock claim and kept for audit.
type DigitalStock struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	VariantID   uuid.UUID         `gorm:"column:variant_id;type:uuid;not null;index:idx_digital_stocks_claim,priority:1"`
	Content     string            `gorm:"column:content;type:text;not null"`
	Status      enums.StockStatus `gorm:"column:status;type:text;not null;index:idx_digital_stocks_claim,priority:2"`
	ExpiresAt   *time.Time        `gorm:"column:expires_at"`
	OrderItemID *uuid.UUID        `gorm:"column:order_item_id;type:uuid"`
	UsedAt      *time.Time        `gorm:"column:used_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_digital_stocks_claim,priority:3"`
}

func (s *DigitalStock) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
