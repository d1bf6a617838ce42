package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vouchr/storefront-backend/internal/fulfillment"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

const (
	defaultReconcileGrace  = 2 * time.Minute
	defaultReconcileMaxAge = 72 * time.Hour
	defaultReconcileBatch  = 50
)

type reconcileOrderReader interface {
	FindProcessingPaidBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Order, error)
	FindByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
}

// FulfillmentReconcileJobParams configure the batch re-driver.
type FulfillmentReconcileJobParams struct {
	Logger *logger.Logger
	Orders reconcileOrderReader
	Engine fulfillment.Engine
	// Grace skips orders whose payment callback may still be fulfilling.
	Grace time.Duration
	// MaxAge leaves older orders to operators.
	MaxAge time.Duration
	Batch  int
}

// NewFulfillmentReconcileJob builds the job that re-invokes Fulfill for paid
// orders that are still open and finishes refunds for FAILED orders.
func NewFulfillmentReconcileJob(params FulfillmentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("fulfillment engine required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	maxAge := params.MaxAge
	if maxAge <= grace {
		maxAge = defaultReconcileMaxAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &fulfillmentReconcileJob{
		logg:   params.Logger,
		orders: params.Orders,
		engine: params.Engine,
		grace:  grace,
		maxAge: maxAge,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type fulfillmentReconcileJob struct {
	logg   *logger.Logger
	orders reconcileOrderReader
	engine fulfillment.Engine
	grace  time.Duration
	maxAge time.Duration
	batch  int
	now    func() time.Time
}

var cronActor = &outbox.ActorRef{Role: "system", Source: "cron"}

func (j *fulfillmentReconcileJob) Name() string { return "fulfillment-reconcile" }

func (j *fulfillmentReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	open, err := j.orders.FindProcessingPaidBetween(ctx, now.Add(-j.maxAge), now.Add(-j.grace), j.batch)
	if err != nil {
		return fmt.Errorf("query processing orders: %w", err)
	}
	failed, err := j.orders.FindByStatus(ctx, enums.OrderStatusFailed, j.batch)
	if err != nil {
		return fmt.Errorf("query failed orders: %w", err)
	}

	var errs error
	statuses := map[enums.OrderStatus]int{}
	for _, batch := range [][]models.Order{open, failed} {
		for _, order := range batch {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			status, err := j.redrive(ctx, order.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.InvoiceCode, err))
				continue
			}
			statuses[status]++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processing_candidates": len(open),
		"failed_candidates":     len(failed),
		"delivered":             statuses[enums.OrderStatusDelivered],
		"still_processing":      statuses[enums.OrderStatusProcessing],
		"refunded":              statuses[enums.OrderStatusCanceled],
		"errors":                len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "fulfillment reconcile complete")
	return errs
}

func (j *fulfillmentReconcileJob) redrive(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	ctx = j.logg.WithOrderID(ctx, orderID.String())
	report, err := j.engine.Fulfill(ctx, orderID, cronActor)
	if err != nil {
		return "", err
	}
	return report.Status, nil
}
