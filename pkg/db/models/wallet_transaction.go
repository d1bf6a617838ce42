package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// WalletTransaction is an append-only ledger row; Amount is always positive
// and Type carries the direction.
type WalletTransaction struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Type          enums.WalletTransactionType `gorm:"column:type;type:text;not null;uniqueIndex:ux_wallet_transactions_type_reference,priority:1"`
	Amount        int64                       `gorm:"column:amount;not null"`
	BalanceBefore int64                       `gorm:"column:balance_before;not null"`
	BalanceAfter  int64                       `gorm:"column:balance_after;not null"`
	Reference     string                      `gorm:"column:reference;type:text;not null;uniqueIndex:ux_wallet_transactions_type_reference,priority:2"`
	Description   string                      `gorm:"column:description;type:text;not null"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (w *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
