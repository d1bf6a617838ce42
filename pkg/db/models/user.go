package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the storefront customer. Balance is a denormalized running total of
// the wallet ledger and only changes together with a WalletTransaction row.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email     string    `gorm:"column:email;type:text;not null;uniqueIndex:ux_users_email"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Phone     *string   `gorm:"column:phone;type:text"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
