package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/repo"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/pagination"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// withGraph preloads everything fulfillment needs to route each item.
func withGraph(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC, order_items.id ASC")
		}).
		Preload("Items.Variant").
		Preload("Items.Variant.Product").
		Preload("Items.Variant.Providers", func(db *gorm.DB) *gorm.DB {
			return db.Order("variant_providers.created_at ASC, variant_providers.id ASC")
		})
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := withGraph(r.DB(ctx)).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByInvoice(ctx context.Context, invoiceCode string) (*models.Order, error) {
	var order models.Order
	err := withGraph(r.DB(ctx)).
		Where("invoice_code = ?", strings.TrimSpace(invoiceCode)).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.DB(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) LockByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.ForUpdate(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}

	query := r.DB(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveItemOutcome never overwrites an item that already succeeded.
func (r *repository) SaveItemOutcome(ctx context.Context, itemID uuid.UUID, outcome ItemOutcome) (bool, error) {
	values := map[string]any{
		"provider_status": outcome.Status,
		"note":            outcome.Note,
	}
	if outcome.ProviderCode != nil {
		values["provider_code"] = *outcome.ProviderCode
	}
	if outcome.TrxID != nil {
		values["provider_trx_id"] = *outcome.TrxID
	}
	if outcome.SN != nil {
		values["sn"] = *outcome.SN
	}
	if outcome.FulfilledAt != nil {
		values["fulfilled_at"] = *outcome.FulfilledAt
	}
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Where("provider_status IS NULL OR provider_status <> ?", enums.ProviderStatusSuccess).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// NoteManualItem annotates an item left to an operator. It only touches items
// without an outcome and reports whether the note changed.
func (r *repository) NoteManualItem(ctx context.Context, itemID uuid.UUID, note string) (bool, error) {
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND provider_status IS NULL", itemID).
		Where("note IS NULL OR note <> ?", note).
		Update("note", note)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) IncrementSold(ctx context.Context, productID uuid.UUID, quantity int) error {
	return r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("sold", gorm.Expr("sold + ?", quantity)).Error
}

// FindProcessingPaidBetween returns PROCESSING orders paid in [from, to), oldest payment first.
func (r *repository) FindProcessingPaidBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ?", enums.OrderStatusProcessing).
		Where("paid_at >= ? AND paid_at < ?", from.UTC(), to.UTC()).
		Order("paid_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindPendingCreatedBefore returns unpaid orders older than cutoff, oldest first.
func (r *repository) FindPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

