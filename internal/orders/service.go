package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
	"github.com/vouchr/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes order reads and the payment-driven transitions that happen
// before fulfillment takes over.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByInvoice(ctx context.Context, invoiceCode string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error)
	CancelUnpaid(ctx context.Context, invoiceCode, reason string) (*models.Order, error)
}

// MarkPaidInput carries a confirmed payment from the gateway.
type MarkPaidInput struct {
	InvoiceCode string
	Amount      int64
	PaidAt      time.Time
	Actor       *outbox.ActorRef
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	return order, mapLoadErr(err)
}

func (s *service) GetByInvoice(ctx context.Context, invoiceCode string) (*models.Order, error) {
	if strings.TrimSpace(invoiceCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice code is required")
	}
	order, err := s.repo.FindByInvoice(ctx, invoiceCode)
	return order, mapLoadErr(err)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (pagination.Page[models.Order], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

// MarkPaid moves a PENDING order to PROCESSING. Replays against an order that
// already left PENDING return the order unchanged.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByInvoice(ctx, input.InvoiceCode)
		if err != nil {
			return mapLoadErr(err)
		}
		if order.Status != enums.OrderStatusPending {
			result = order
			return nil
		}
		if input.Amount != order.TotalAmount {
			return pkgerrors.New(pkgerrors.CodeValidation, "paid amount does not match order total").
				WithDetails(map[string]any{"expected": order.TotalAmount, "received": input.Amount})
		}
		moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing, map[string]any{
			"paid_at": paidAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		order.Status = enums.OrderStatusProcessing
		order.PaidAt = &paidAt

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			OccurredAt:    paidAt,
			Data: payloads.OrderPaidEvent{
				OrderID:     order.ID,
				InvoiceCode: order.InvoiceCode,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				PaidAt:      paidAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelUnpaid cancels a PENDING order whose payment expired or failed. No
// money moved, so there is no wallet effect.
func (s *service) CancelUnpaid(ctx context.Context, invoiceCode, reason string) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByInvoice(ctx, invoiceCode)
		if err != nil {
			return mapLoadErr(err)
		}
		if order.Status != enums.OrderStatusPending {
			result = order
			return nil
		}
		now := s.now()
		moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCanceled, map[string]any{
			"canceled_at":   now,
			"cancel_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		order.Status = enums.OrderStatusCanceled
		order.CanceledAt = &now
		order.CancelReason = &reason

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCanceledEvent{
				OrderID:     order.ID,
				InvoiceCode: order.InvoiceCode,
				Reason:      reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order canceled")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func mapLoadErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
