package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByInvoice(ctx context.Context, invoiceCode string) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	LockByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	SaveItemOutcome(ctx context.Context, itemID uuid.UUID, outcome ItemOutcome) (bool, error)
	NoteManualItem(ctx context.Context, itemID uuid.UUID, note string) (bool, error)
	IncrementSold(ctx context.Context, productID uuid.UUID, quantity int) error
	FindProcessingPaidBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Order, error)
	FindByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
	FindPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ListFilters narrow the operator order list.
type ListFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// ItemOutcome is the persisted result of one fulfillment attempt.
type ItemOutcome struct {
	ProviderCode *enums.ProviderCode
	Status       enums.ProviderStatus
	TrxID        *string
	SN           *string
	Note         *string
	FulfilledAt  *time.Time
}
