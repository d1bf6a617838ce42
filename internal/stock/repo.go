package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/repo"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Repository persists digital stock rows and the variant's cached counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockAvailable(ctx context.Context, variantID uuid.UUID, now time.Time, limit int) ([]models.DigitalStock, error)
	MarkUsed(ctx context.Context, ids []uuid.UUID, orderItemID uuid.UUID, usedAt time.Time) (int64, error)
	CountAvailable(ctx context.Context, variantID uuid.UUID, now time.Time) (int64, error)
	Insert(ctx context.Context, rows []models.DigitalStock) error
	AdjustCounter(ctx context.Context, variantID uuid.UUID, delta int) error
	VariantExists(ctx context.Context, variantID uuid.UUID) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a stock repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func claimable(db *gorm.DB, variantID uuid.UUID, now time.Time) *gorm.DB {
	return db.
		Where("variant_id = ? AND status = ?", variantID, enums.StockAvailable).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC())
}

// LockAvailable selects the oldest claimable rows and locks them, skipping
// rows a concurrent claim already holds.
func (r *repository) LockAvailable(ctx context.Context, variantID uuid.UUID, now time.Time, limit int) ([]models.DigitalStock, error) {
	var rows []models.DigitalStock
	err := claimable(r.ForUpdateSkipLocked(ctx), variantID, now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkUsed(ctx context.Context, ids []uuid.UUID, orderItemID uuid.UUID, usedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).
		Model(&models.DigitalStock{}).
		Where("id IN ? AND status = ?", ids, enums.StockAvailable).
		Updates(map[string]any{
			"status":        enums.StockUsed,
			"order_item_id": orderItemID,
			"used_at":       usedAt.UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountAvailable(ctx context.Context, variantID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := claimable(r.DB(ctx).Model(&models.DigitalStock{}), variantID, now).Count(&count).Error
	return count, err
}

func (r *repository) Insert(ctx context.Context, rows []models.DigitalStock) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

// AdjustCounter moves the cached stock counter, never below zero.
func (r *repository) AdjustCounter(ctx context.Context, variantID uuid.UUID, delta int) error {
	return r.DB(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("CASE WHEN stock + ? < 0 THEN 0 ELSE stock + ? END", delta, delta)).Error
}

func (r *repository) VariantExists(ctx context.Context, variantID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.ProductVariant{}).Where("id = ?", variantID).Count(&count).Error
	return count > 0, err
}
