package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/ledger"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/db/dbtest"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/metrics"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

type harness struct {
	conn   *gorm.DB
	svc    Service
	ledger ledger.Service
	reg    *prometheus.Registry
	seed   *dbtest.Fixtures
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Orders:  orders.NewRepository(conn),
		Ledger:  ledgerSvc,
		Tx:      db.Wrap(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Logger:  logger.Nop(),
		Metrics: metrics.NewFulfillmentMetrics(reg),
		Now:     func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, ledger: ledgerSvc, reg: reg, seed: dbtest.Seed(t, conn)}
}

func (h *harness) order(t *testing.T, userID uuid.UUID, status enums.OrderStatus, amount int64) models.Order {
	t.Helper()
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	return h.seed.Order(userID, status, dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: amount})
}

func (h *harness) refundCounter(t *testing.T) float64 {
	t.Helper()
	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "orders_refunded_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for empty params")
	}
}

func TestRefundCreditsWalletOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seed.User(10000)
	order := h.order(t, user.ID, enums.OrderStatusProcessing, 45000)

	first, err := h.svc.Refund(ctx, RefundInput{OrderID: order.ID, Reason: "vendor outage"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyRefunded)
	assert.Equal(t, enums.OrderStatusCanceled, first.Status)
	require.NotNil(t, first.BalanceAfter)
	assert.Equal(t, int64(55000), *first.BalanceAfter)

	second, err := h.svc.Refund(ctx, RefundInput{OrderID: order.ID, Reason: "vendor outage"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyRefunded)
	assert.Nil(t, second.WalletTransactionID)

	var stored models.User
	require.NoError(t, h.conn.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, int64(55000), stored.Balance)

	assert.Equal(t, int64(1), h.count(t, &models.WalletTransaction{}, "user_id = ? AND type = ?", user.ID, enums.WalletRefund))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderRefunded))
	assert.Equal(t, float64(1), h.refundCounter(t))

	rec, err := h.ledger.Verify(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "balance %d ledger %d", rec.Balance, rec.LedgerSum)

	var reloaded models.Order
	require.NoError(t, h.conn.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCanceled, reloaded.Status)
	require.NotNil(t, reloaded.CancelReason)
	assert.Equal(t, "vendor outage", *reloaded.CancelReason)
	require.NotNil(t, reloaded.CanceledAt)
}

func TestRefundAcceptsFailedOrdersAndDefaultsReason(t *testing.T) {
	h := newHarness(t)
	user := h.seed.User(0)
	order := h.order(t, user.ID, enums.OrderStatusFailed, 12000)

	result, err := h.svc.Refund(context.Background(), RefundInput{OrderID: order.ID})
	require.NoError(t, err)
	require.NotNil(t, result.WalletTransactionID)

	var txn models.WalletTransaction
	require.NoError(t, h.conn.First(&txn, "id = ?", *result.WalletTransactionID).Error)
	assert.Equal(t, order.InvoiceCode, txn.Reference)
	assert.Equal(t, defaultReason, txn.Description)
	assert.Equal(t, int64(0), txn.BalanceBefore)
	assert.Equal(t, int64(12000), txn.BalanceAfter)
}

func TestRefundRejectsIneligibleStatuses(t *testing.T) {
	h := newHarness(t)
	user := h.seed.User(0)

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusDelivered} {
		order := h.order(t, user.ID, status, 5000)
		_, err := h.svc.Refund(context.Background(), RefundInput{OrderID: order.ID})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "%s: got %v", status, err)
	}
	assert.Equal(t, int64(0), h.count(t, &models.WalletTransaction{}, "user_id = ?", user.ID))
	assert.Equal(t, float64(0), h.refundCounter(t))
}

func TestRefundCanceledOrderIsNoop(t *testing.T) {
	h := newHarness(t)
	user := h.seed.User(0)
	order := h.order(t, user.ID, enums.OrderStatusCanceled, 5000)

	result, err := h.svc.Refund(context.Background(), RefundInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.AlreadyRefunded)
	assert.Equal(t, int64(0), h.count(t, &models.WalletTransaction{}, "user_id = ?", user.ID))
}

func TestRefundUnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Refund(context.Background(), RefundInput{OrderID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = h.svc.Refund(context.Background(), RefundInput{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreditLatePayment(t *testing.T) {
	h := newHarness(t)
	user := h.seed.User(0)
	expired := h.order(t, user.ID, enums.OrderStatusCanceled, 7000)
	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", expired.ID).Update("paid_at", nil).Error)
	ctx := context.Background()

	_, err := h.svc.CreditLatePayment(ctx, LatePaymentInput{InvoiceCode: expired.InvoiceCode, Amount: 6999})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	result, err := h.svc.CreditLatePayment(ctx, LatePaymentInput{InvoiceCode: expired.InvoiceCode, Amount: 7000})
	require.NoError(t, err)
	assert.False(t, result.AlreadyRefunded)
	assert.Equal(t, enums.OrderStatusCanceled, result.Status)
	require.NotNil(t, result.BalanceAfter)
	assert.Equal(t, int64(7000), *result.BalanceAfter)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderRefunded))

	again, err := h.svc.CreditLatePayment(ctx, LatePaymentInput{InvoiceCode: expired.InvoiceCode, Amount: 7000})
	require.NoError(t, err)
	assert.True(t, again.AlreadyRefunded)
	assert.Equal(t, int64(1), h.count(t, &models.WalletTransaction{}, "user_id = ? AND type = ?", user.ID, enums.WalletRefund))
	assert.Equal(t, float64(1), h.refundCounter(t))
}

func TestCreditLatePaymentSkipsRefundedOrders(t *testing.T) {
	h := newHarness(t)
	user := h.seed.User(0)
	order := h.order(t, user.ID, enums.OrderStatusProcessing, 3000)
	ctx := context.Background()

	_, err := h.svc.Refund(ctx, RefundInput{OrderID: order.ID})
	require.NoError(t, err)

	result, err := h.svc.CreditLatePayment(ctx, LatePaymentInput{InvoiceCode: order.InvoiceCode, Amount: 3000})
	require.NoError(t, err)
	assert.True(t, result.AlreadyRefunded)
	assert.Equal(t, int64(1), h.count(t, &models.WalletTransaction{}, "user_id = ?", user.ID))

	_, err = h.svc.CreditLatePayment(ctx, LatePaymentInput{InvoiceCode: "INV-none", Amount: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}
