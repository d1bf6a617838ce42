// Package refunds returns the money of an order to the customer's wallet,
// exactly once per order.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/ledger"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/metrics"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultReason     = "Order refunded"
	latePaymentReason = "Payment received after the order expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service refunds orders.
type Service interface {
	Refund(ctx context.Context, input RefundInput) (*Result, error)
	CreditLatePayment(ctx context.Context, input LatePaymentInput) (*Result, error)
}

// LatePaymentInput is a confirmed payment for an order that was already
// canceled unpaid.
type LatePaymentInput struct {
	InvoiceCode string
	Amount      int64
	PaidAt      time.Time
	Actor       *outbox.ActorRef
}

// RefundInput names the order and why it is refunded.
type RefundInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   *outbox.ActorRef
}

// Result describes what the refund did. AlreadyRefunded is set when the order
// was already CANCELED or REFUNDED and nothing moved.
type Result struct {
	OrderID             uuid.UUID         `json:"order_id"`
	InvoiceCode         string            `json:"invoice_code"`
	Status              enums.OrderStatus `json:"status"`
	Amount              int64             `json:"amount"`
	AlreadyRefunded     bool              `json:"already_refunded"`
	WalletTransactionID *uuid.UUID        `json:"wallet_transaction_id,omitempty"`
	BalanceAfter        *int64            `json:"balance_after,omitempty"`
}

type ServiceParams struct {
	Orders  orders.Repository
	Ledger  ledger.Service
	Tx      txRunner
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.FulfillmentMetrics
	Now     func() time.Time
}

type service struct {
	orders  orders.Repository
	ledger  ledger.Service
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.FulfillmentMetrics
	now     func() time.Time
}

// NewService builds the refund orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		orders:  params.Orders,
		ledger:  params.Ledger,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*Result, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.refundTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, result)
	return result, nil
}

// refundTx locks the order, moves it to CANCELED, credits the wallet and emits
// order_refunded in one transaction.
func (s *service) refundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultReason
	}

	repo := s.orders.WithTx(tx)
	order, err := repo.LockByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}

	result := &Result{
		OrderID:     order.ID,
		InvoiceCode: order.InvoiceCode,
		Status:      order.Status,
		Amount:      order.TotalAmount,
	}
	if order.Status.IsRefundedOrCanceled() {
		result.AlreadyRefunded = true
		return result, nil
	}
	if !refundable(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not refundable").
			WithDetails(map[string]any{"status": order.Status})
	}

	now := s.now()
	moved, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusCanceled, map[string]any{
		"canceled_at":   now,
		"cancel_reason": reason,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
	}

	var txn *models.WalletTransaction
	if order.TotalAmount > 0 {
		txn, err = s.ledger.Credit(ctx, tx, ledger.CreditInput{
			UserID:      order.UserID,
			Type:        enums.WalletRefund,
			Amount:      order.TotalAmount,
			Reference:   order.InvoiceCode,
			Description: reason,
		})
		if err != nil {
			return nil, err
		}
		result.WalletTransactionID = &txn.ID
		result.BalanceAfter = &txn.BalanceAfter
	}

	event := payloads.OrderRefundedEvent{
		OrderID:     order.ID,
		InvoiceCode: order.InvoiceCode,
		UserID:      order.UserID,
		Amount:      order.TotalAmount,
		Reason:      reason,
	}
	if txn != nil {
		event.WalletTransactionID = txn.ID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor,
		OccurredAt:    now,
		Data:          event,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order refunded")
	}

	result.Status = enums.OrderStatusCanceled
	return result, nil
}

// CreditLatePayment credits the wallet for a payment captured after its order
// was canceled unpaid. The order stays CANCELED and records paid_at; the
// (type, reference) ledger key makes a replay a no-op.
func (s *service) CreditLatePayment(ctx context.Context, input LatePaymentInput) (*Result, error) {
	invoice := strings.TrimSpace(input.InvoiceCode)
	if invoice == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice code is required")
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		found, err := repo.FindByInvoice(ctx, invoice)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order, err := repo.LockByID(ctx, found.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		result = &Result{
			OrderID:     order.ID,
			InvoiceCode: order.InvoiceCode,
			Status:      order.Status,
			Amount:      order.TotalAmount,
		}
		if order.Status != enums.OrderStatusCanceled || order.PaidAt != nil {
			result.AlreadyRefunded = true
			return nil
		}
		if input.Amount != order.TotalAmount {
			return pkgerrors.New(pkgerrors.CodeValidation, "paid amount does not match order total").
				WithDetails(map[string]any{"expected": order.TotalAmount, "received": input.Amount})
		}

		moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusCanceled, enums.OrderStatusCanceled, map[string]any{
			"paid_at": paidAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late payment")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		event := payloads.OrderRefundedEvent{
			OrderID:     order.ID,
			InvoiceCode: order.InvoiceCode,
			UserID:      order.UserID,
			Amount:      order.TotalAmount,
			Reason:      latePaymentReason,
		}
		if order.TotalAmount > 0 {
			txn, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
				UserID:      order.UserID,
				Type:        enums.WalletRefund,
				Amount:      order.TotalAmount,
				Reference:   order.InvoiceCode,
				Description: latePaymentReason,
			})
			if err != nil {
				return err
			}
			result.WalletTransactionID = &txn.ID
			result.BalanceAfter = &txn.BalanceAfter
			event.WalletTransactionID = txn.ID
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			OccurredAt:    paidAt,
			Data:          event,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order refunded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, result)
	return result, nil
}

func (s *service) observe(ctx context.Context, result *Result) {
	if result == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     result.OrderID.String(),
		"invoice_code": result.InvoiceCode,
		"amount":       result.Amount,
	})
	if result.AlreadyRefunded {
		s.logg.Info(logCtx, "refund skipped; order already closed")
		return
	}
	s.metrics.IncRefund()
	s.logg.Info(logCtx, "order refunded to wallet")
}

func refundable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusProcessing || status == enums.OrderStatusFailed
}
