// Package fulfillment delivers paid orders. Each item is routed to the stock
// pool or a vendor gateway, outcomes are persisted per item and the order
// status is recomputed from the persisted outcomes at the end of every run.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/internal/stock"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/metrics"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultVendorTimeout = 30 * time.Second
	defaultRefundReason  = "Automatic refund: all items failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayResolver interface {
	Gateway(code enums.ProviderCode) (providers.Gateway, bool)
}

type refunder interface {
	Refund(ctx context.Context, input refunds.RefundInput) (*refunds.Result, error)
}

// Engine fulfills orders. It is safe to call Fulfill repeatedly for the same
// order: items that already succeeded are never dispatched again.
type Engine interface {
	Fulfill(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*Report, error)
}

type EngineParams struct {
	Orders        orders.Repository
	Stock         stock.Pool
	Gateways      gatewayResolver
	Refunds       refunder
	Tx            txRunner
	Outbox        outboxPublisher
	Logger        *logger.Logger
	Metrics       *metrics.FulfillmentMetrics
	VendorTimeout time.Duration
	RefundReason  string
	Now           func() time.Time
}

type engine struct {
	orders        orders.Repository
	stock         stock.Pool
	gateways      gatewayResolver
	refunds       refunder
	tx            txRunner
	outbox        outboxPublisher
	logg          *logger.Logger
	metrics       *metrics.FulfillmentMetrics
	vendorTimeout time.Duration
	refundReason  string
	now           func() time.Time
}

// NewEngine wires the fulfillment engine.
func NewEngine(params EngineParams) (Engine, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock pool required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
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
	timeout := params.VendorTimeout
	if timeout <= 0 {
		timeout = defaultVendorTimeout
	}
	reason := strings.TrimSpace(params.RefundReason)
	if reason == "" {
		reason = defaultRefundReason
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &engine{
		orders:        params.Orders,
		stock:         params.Stock,
		gateways:      params.Gateways,
		refunds:       params.Refunds,
		tx:            params.Tx,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       params.Metrics,
		vendorTimeout: timeout,
		refundReason:  reason,
		now:           now,
	}, nil
}

func (e *engine) Fulfill(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*Report, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	ctx = e.logg.WithOrderID(ctx, order.ID.String())
	ctx = e.logg.WithInvoice(ctx, order.InvoiceCode)

	report := &Report{
		OrderID:      order.ID,
		InvoiceCode:  order.InvoiceCode,
		StatusBefore: order.Status,
		Status:       order.Status,
	}

	switch order.Status {
	case enums.OrderStatusProcessing:
	case enums.OrderStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
	case enums.OrderStatusFailed:
		// a previous run failed every item but the refund did not commit
		return report, e.refund(ctx, report, actor)
	default:
		e.logg.Debug(ctx, "order already closed; nothing to fulfill")
		return report, nil
	}

	before := snapshot(order.Items)
	for i := range order.Items {
		item := &order.Items[i]
		report.Items = append(report.Items, e.fulfillItem(ctx, order, item, actor))
	}

	failed, err := e.aggregate(ctx, report, before, actor)
	if err != nil {
		return report, err
	}
	if failed {
		return report, e.refund(ctx, report, actor)
	}
	return report, nil
}

// aggregate recomputes the order status from the persisted item outcomes and
// reports whether the order just moved to FAILED.
func (e *engine) aggregate(ctx context.Context, report *Report, before string, actor *outbox.ActorRef) (bool, error) {
	movedToFailed := false
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		if _, err := repo.LockByID(ctx, report.OrderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		order, err := repo.FindByID(ctx, report.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		report.Status = order.Status
		tally(report, order.Items)
		if order.Status != enums.OrderStatusProcessing {
			return nil
		}

		now := e.now()
		total := len(order.Items)
		switch {
		case total > 0 && report.Succeeded == total:
			moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusDelivered, map[string]any{
				"delivered_at": now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
			}
			if !moved {
				return nil
			}
			report.Status = enums.OrderStatusDelivered
			return e.emit(ctx, tx, order.ID, enums.EventOrderDelivered, actor, now, payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				InvoiceCode: order.InvoiceCode,
				DeliveredAt: now,
			})

		case total > 0 && report.Failed == total:
			moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusFailed, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
			}
			if !moved {
				return nil
			}
			report.Status = enums.OrderStatusFailed
			movedToFailed = true
			return e.emit(ctx, tx, order.ID, enums.EventOrderFailed, actor, now, payloads.OrderFailedEvent{
				OrderID:     order.ID,
				InvoiceCode: order.InvoiceCode,
				FailedItems: report.Failed,
			})
		}

		needsOperator := report.Failed+report.Insufficient+report.Manual > 0
		if !needsOperator || snapshot(order.Items) == before {
			return nil
		}
		return e.emit(ctx, tx, order.ID, enums.EventOrderAttentionRequired, actor, now, payloads.OrderAttentionRequiredEvent{
			OrderID:      order.ID,
			InvoiceCode:  order.InvoiceCode,
			Succeeded:    report.Succeeded,
			Pending:      report.Pending,
			Failed:       report.Failed,
			Insufficient: report.Insufficient,
			Manual:       report.Manual,
			Notes:        attentionNotes(order.Items),
		})
	})
	if err != nil {
		e.logg.Error(ctx, "failed to aggregate order status", err)
		return false, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"status":       report.Status,
		"succeeded":    report.Succeeded,
		"pending":      report.Pending,
		"failed":       report.Failed,
		"insufficient": report.Insufficient,
		"manual":       report.Manual,
	})
	e.logg.Info(logCtx, "fulfillment run finished")
	return movedToFailed, nil
}

func (e *engine) refund(ctx context.Context, report *Report, actor *outbox.ActorRef) error {
	result, err := e.refunds.Refund(ctx, refunds.RefundInput{
		OrderID: report.OrderID,
		Reason:  e.refundReason,
		Actor:   actor,
	})
	if err != nil {
		e.logg.Error(ctx, "automatic refund failed", err)
		return err
	}
	report.Refund = result
	report.Status = result.Status
	return nil
}

func (e *engine) emit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, eventType enums.OutboxEventType, actor *outbox.ActorRef, at time.Time, data any) error {
	if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		OccurredAt:    at,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func tally(report *Report, items []models.OrderItem) {
	report.Succeeded, report.Pending, report.Failed, report.Insufficient, report.Manual = 0, 0, 0, 0, 0
	for _, item := range items {
		if item.ProviderStatus == nil {
			if classify(item) == PathManual {
				report.Manual++
			}
			continue
		}
		switch *item.ProviderStatus {
		case enums.ProviderStatusSuccess:
			report.Succeeded++
		case enums.ProviderStatusPending:
			report.Pending++
		case enums.ProviderStatusFailed:
			report.Failed++
		case enums.ProviderStatusInsufficientInventory:
			report.Insufficient++
		}
	}
}

// snapshot fingerprints the persisted item outcomes and notes.
func snapshot(items []models.OrderItem) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.ID.String())
		b.WriteByte('=')
		if item.ProviderStatus != nil {
			b.WriteString(string(*item.ProviderStatus))
		}
		if item.Note != nil {
			b.WriteString(":" + *item.Note)
		}
		b.WriteByte(';')
	}
	return b.String()
}

func attentionNotes(items []models.OrderItem) []string {
	var notes []string
	for _, item := range items {
		if item.Succeeded() {
			continue
		}
		label := item.ID.String()[:8]
		if item.Variant != nil {
			label = item.Variant.Name
		}
		switch {
		case item.ProviderStatus == nil && classify(item) == PathManual:
			notes = append(notes, label+": manual fulfillment")
		case item.ProviderStatus != nil && *item.ProviderStatus != enums.ProviderStatusPending:
			note := string(*item.ProviderStatus)
			if item.Note != nil && *item.Note != "" {
				note += " - " + *item.Note
			}
			notes = append(notes, label+": "+note)
		}
	}
	return notes
}
