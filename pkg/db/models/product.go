package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Product groups sellable variants under one category.
type Product struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name         string             `gorm:"column:name;type:text;not null"`
	Slug         string             `gorm:"column:slug;type:text;not null;uniqueIndex:ux_products_slug"`
	CategoryType enums.CategoryType `gorm:"column:category_type;type:text;not null"`
	Sold         int64              `gorm:"column:sold;not null;default:0"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
