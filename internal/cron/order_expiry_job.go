package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 24 * time.Hour
	orderExpiryBatch       = 200
	orderExpiryReason      = "Payment window expired"
)

type pendingOrderReader interface {
	FindPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type unpaidCanceler interface {
	CancelUnpaid(ctx context.Context, invoiceCode, reason string) (*models.Order, error)
}

// OrderExpiryJobParams configure the unpaid order expiry job.
type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Pending pendingOrderReader
	Orders  unpaidCanceler
	TTL     time.Duration
}

// NewOrderExpiryJob builds the job that cancels orders whose payment never
// arrived.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pending == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		pending: params.Pending,
		orders:  params.Orders,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	pending pendingOrderReader
	orders  unpaidCanceler
	ttl     time.Duration
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.pending.FindPendingCreatedBefore(ctx, cutoff, orderExpiryBatch)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	var errs error
	expired := 0
	for _, order := range stale {
		updated, err := j.orders.CancelUnpaid(ctx, order.InvoiceCode, orderExpiryReason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", order.InvoiceCode, err))
			continue
		}
		if updated.Status == enums.OrderStatusCanceled {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "pending order expiry complete")
	return errs
}
