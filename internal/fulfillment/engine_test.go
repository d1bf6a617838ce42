package fulfillment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vouchr/storefront-backend/internal/ledger"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/internal/stock"
	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/db/dbtest"
	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/metrics"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

type fakeGateway struct {
	code    enums.ProviderCode
	respond func(req providers.Request) (providers.Result, error)

	mu    sync.Mutex
	calls []providers.Request
}

func (g *fakeGateway) Code() enums.ProviderCode { return g.code }

func (g *fakeGateway) Dispatch(ctx context.Context, req providers.Request) (providers.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.respond(req)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func succeed(sn string) func(providers.Request) (providers.Result, error) {
	return func(req providers.Request) (providers.Result, error) {
		return providers.Result{Status: enums.ProviderStatusSuccess, TrxID: "trx-" + req.RefID, SN: sn}, nil
	}
}

func fail(message string) func(providers.Request) (providers.Result, error) {
	return func(providers.Request) (providers.Result, error) {
		return providers.Result{Status: enums.ProviderStatusFailed, Message: message}, nil
	}
}

type gatewayMap map[enums.ProviderCode]providers.Gateway

func (m gatewayMap) Gateway(code enums.ProviderCode) (providers.Gateway, bool) {
	gw, ok := m[code]
	return gw, ok
}

type harness struct {
	conn   *gorm.DB
	seed   *dbtest.Fixtures
	engine Engine
	stock  stock.Pool
	ledger ledger.Service
	orders orders.Repository
	reg    *prometheus.Registry
}

func newHarness(t *testing.T, timeout time.Duration, gateways ...providers.Gateway) *harness {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	logg := logger.Nop()
	tx := db.Wrap(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	reg := prometheus.NewRegistry()
	fm := metrics.NewFulfillmentMetrics(reg)

	repo := orders.NewRepository(conn)
	pool, err := stock.NewService(stock.ServiceParams{
		Repo:     stock.NewRepository(conn),
		Tx:       tx,
		Outbox:   publisher,
		Logger:   logg,
		Boundary: "\n---\n",
	})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Orders:  repo,
		Ledger:  ledgerSvc,
		Tx:      tx,
		Outbox:  publisher,
		Logger:  logg,
		Metrics: fm,
	})
	require.NoError(t, err)

	resolver := gatewayMap{}
	for _, gw := range gateways {
		resolver[gw.Code()] = gw
	}
	engine, err := NewEngine(EngineParams{
		Orders:        repo,
		Stock:         pool,
		Gateways:      resolver,
		Refunds:       refundSvc,
		Tx:            tx,
		Outbox:        publisher,
		Logger:        logg,
		Metrics:       fm,
		VendorTimeout: timeout,
	})
	require.NoError(t, err)

	return &harness{
		conn:   conn,
		seed:   dbtest.Seed(t, conn),
		engine: engine,
		stock:  pool,
		ledger: ledgerSvc,
		orders: repo,
		reg:    reg,
	}
}

func (h *harness) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func (h *harness) refundRows(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(&models.WalletTransaction{}).
		Where("user_id = ? AND type = ?", userID, enums.WalletRefund).Count(&n).Error)
	return n
}

func (h *harness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) itemCounter(t *testing.T, path Path, outcome string) float64 {
	t.Helper()
	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "fulfillment_items_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] == string(path) && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewEngineValidatesDependencies(t *testing.T) {
	if _, err := NewEngine(EngineParams{}); err == nil {
		t.Fatal("expected missing dependencies to be rejected")
	}
}

func TestFulfillDeliversStockedItems(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryDigital)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryStocked)
	h.seed.Stock(variant.ID, "acc-1", "acc-2", "acc-3")
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 15000},
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 15000},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, report.Status)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Dispatched())

	got := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	sns := map[string]bool{}
	for _, item := range got.Items {
		require.True(t, item.Succeeded())
		require.NotNil(t, item.SN)
		require.NotNil(t, item.FulfilledAt)
		sns[*item.SN] = true
	}
	assert.Len(t, sns, 2, "each item gets its own stock row")

	available, err := h.stock.Available(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)

	var reloaded models.Product
	require.NoError(t, h.conn.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, int64(2), reloaded.Sold)

	assert.Equal(t, int64(2), h.events(t, enums.EventOrderItemFulfilled))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderDelivered))
	assert.Equal(t, float64(2), h.itemCounter(t, PathStock, string(enums.ProviderStatusSuccess)))
}

func TestFulfillLeavesOrderProcessingWhenStockRunsShort(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryDigital)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryStocked)
	h.seed.Stock(variant.ID, "only-one")
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, Quantity: 3, UnitPrice: 10000},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, report.Status)
	assert.Equal(t, 1, report.Insufficient)
	assert.Nil(t, report.Refund)

	item := h.order(t, order.ID).Items[0]
	require.NotNil(t, item.ProviderStatus)
	assert.Equal(t, enums.ProviderStatusInsufficientInventory, *item.ProviderStatus)
	require.NotNil(t, item.Note)
	assert.Contains(t, *item.Note, "requested 3")
	assert.Nil(t, item.SN)

	available, err := h.stock.Available(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available, "a short claim must not consume stock")
	assert.Equal(t, int64(0), h.refundRows(t, user.ID))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderAttentionRequired))

	// restock and re-run
	_, err = h.stock.AddStock(context.Background(), stock.AddStockInput{
		VariantID: variant.ID,
		Contents:  []string{"two", "three"},
	})
	require.NoError(t, err)
	report, err = h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, report.Status)

	item = h.order(t, order.ID).Items[0]
	require.NotNil(t, item.SN)
	parts := strings.Split(*item.SN, "\n---\n")
	assert.Len(t, parts, 3)
	assert.Equal(t, "only-one", parts[0])
}

func TestFulfillMixedVendorOutcomesKeepsOrderOpen(t *testing.T) {
	digi := &fakeGateway{code: enums.ProviderDigiflazz, respond: succeed("SN-001")}
	apig := &fakeGateway{code: enums.ProviderAPIGames, respond: fail("Server maintenance")}
	h := newHarness(t, time.Second, digi, apig)
	user := h.seed.User(5000)
	product := h.seed.Product(enums.CategoryGame)
	v1 := h.seed.Variant(product.ID, dbtest.Ptr(enums.ProviderDigiflazz), enums.DeliveryAutomated)
	h.seed.Offer(v1.ID, enums.ProviderDigiflazz, "ML86", 19000, true)
	v2 := h.seed.Variant(product.ID, dbtest.Ptr(enums.ProviderAPIGames), enums.DeliveryAutomated)
	h.seed.Offer(v2.ID, enums.ProviderAPIGames, "FF100", 14000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: v1.ID, UnitPrice: 21000, Target: dbtest.Ptr("12345|678")},
		dbtest.ItemSpec{VariantID: v2.ID, UnitPrice: 16000, Target: dbtest.Ptr("99887766")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, report.Status)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Nil(t, report.Refund)

	require.Equal(t, 1, digi.callCount())
	assert.Equal(t, "ML86", digi.calls[0].SKU)
	assert.Equal(t, "12345|678", digi.calls[0].Target)
	assert.Equal(t, providers.RefID(order.InvoiceCode, order.Items[0].ID), digi.calls[0].RefID)

	got := h.order(t, order.ID)
	require.True(t, got.Items[0].Succeeded())
	assert.Equal(t, "SN-001", *got.Items[0].SN)
	assert.Equal(t, enums.ProviderDigiflazz, *got.Items[0].ProviderCode)
	require.True(t, got.Items[1].Failed())
	assert.Equal(t, "Server maintenance", *got.Items[1].Note)

	var balance models.User
	require.NoError(t, h.conn.First(&balance, "id = ?", user.ID).Error)
	assert.Equal(t, int64(5000), balance.Balance)
	assert.Equal(t, int64(0), h.refundRows(t, user.ID))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderAttentionRequired))

	// a re-run only retries the failed item
	report, err = h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, digi.callCount())
	assert.Equal(t, 2, apig.callCount())
	assert.True(t, report.Items[0].Skipped)
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderAttentionRequired), "unchanged outcomes do not alert twice")
}

func TestFulfillRefundsWhenEveryItemFails(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(1000)
	product := h.seed.Product(enums.CategoryPulsa)
	variant := h.seed.Variant(product.ID, dbtest.Ptr(enums.ProviderDigiflazz), enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "TSEL10", 10200, false)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 11000, Target: dbtest.Ptr("081234567890")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, report.Status)
	require.NotNil(t, report.Refund)
	assert.Equal(t, int64(11000), report.Refund.Amount)

	got := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCanceled, got.Status)
	require.True(t, got.Items[0].Failed())
	assert.Equal(t, noteNoMapping, *got.Items[0].Note)

	var reloaded models.User
	require.NoError(t, h.conn.First(&reloaded, "id = ?", user.ID).Error)
	assert.Equal(t, int64(12000), reloaded.Balance)
	assert.Equal(t, int64(1), h.refundRows(t, user.ID))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderFailed))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderRefunded))

	recon, err := h.ledger.Verify(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, recon.Consistent)

	report, err = h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, report.Status)
	assert.Equal(t, int64(1), h.refundRows(t, user.ID))
}

func TestFulfillRetriesRefundForFailedOrders(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	order := h.seed.Order(user.ID, enums.OrderStatusFailed,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 30000},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, report.Refund)
	assert.Equal(t, enums.OrderStatusCanceled, report.Status)
	assert.Equal(t, int64(1), h.refundRows(t, user.ID))
}

func TestFulfillIsIdempotentOnceDelivered(t *testing.T) {
	digi := &fakeGateway{code: enums.ProviderDigiflazz, respond: succeed("SN-9")}
	h := newHarness(t, time.Second, digi)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "ML86", 19000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 21000, Target: dbtest.Ptr("1|2")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, report.Status)

	report, err = h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, report.Status)
	assert.Empty(t, report.Items)
	assert.Equal(t, 1, digi.callCount())
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderItemFulfilled))
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderDelivered))
}

func TestFulfillFallsBackToFirstActiveMapping(t *testing.T) {
	medan := &fakeGateway{code: enums.ProviderMedanPedia, respond: func(req providers.Request) (providers.Result, error) {
		return providers.Result{Status: enums.ProviderStatusPending, TrxID: "55"}, nil
	}}
	h := newHarness(t, time.Second, medan)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategorySosmed)
	variant := h.seed.Variant(product.ID, dbtest.Ptr(enums.ProviderDigiflazz), enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "IGF", 900, false)
	h.seed.Offer(variant.ID, enums.ProviderMedanPedia, "301", 1000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, Quantity: 500, UnitPrice: 20, Target: dbtest.Ptr("https://instagram.com/p/x")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, report.Status)
	assert.Equal(t, 1, report.Pending)
	require.Equal(t, 1, medan.callCount())
	assert.Equal(t, 500, medan.calls[0].Quantity)
	assert.Equal(t, int64(0), h.events(t, enums.EventOrderAttentionRequired), "pending items do not need an operator")

	item := h.order(t, order.ID).Items[0]
	assert.Equal(t, enums.ProviderMedanPedia, *item.ProviderCode)
	assert.Equal(t, "55", *item.ProviderTrxID)
}

func TestFulfillMissingTargetIsTerminal(t *testing.T) {
	digi := &fakeGateway{code: enums.ProviderDigiflazz, respond: succeed("x")}
	h := newHarness(t, time.Second, digi)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "ML86", 19000, true)
	stocked := h.seed.Product(enums.CategoryDigital)
	stockedVariant := h.seed.Variant(stocked.ID, nil, enums.DeliveryStocked)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 21000, Target: dbtest.Ptr("   ")},
		dbtest.ItemSpec{VariantID: stockedVariant.ID, UnitPrice: 5000},
	)

	_, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, digi.callCount())
	item := h.order(t, order.ID).Items[0]
	require.True(t, item.Failed())
	assert.Equal(t, noteTargetMissing, *item.Note)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.True(t, report.Items[0].Skipped, "data errors are not retried")
	assert.Equal(t, 0, digi.callCount())
}

func TestFulfillLeavesManualItemsToOperators(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryOther)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryManual)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 50000},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, report.Status)
	assert.Equal(t, 1, report.Manual)
	assert.Equal(t, 0, report.Dispatched())

	item := h.order(t, order.ID).Items[0]
	assert.Nil(t, item.ProviderStatus)
	require.NotNil(t, item.Note)
	assert.Equal(t, noteManual, *item.Note)
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderAttentionRequired))

	_, err = h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderAttentionRequired))
}

func TestFulfillIsolatesVendorFaults(t *testing.T) {
	slow := &fakeGateway{code: enums.ProviderTokoVoucher, respond: func(providers.Request) (providers.Result, error) {
		panic("decoder exploded")
	}}
	broken := &fakeGateway{code: enums.ProviderAPIGames, respond: func(providers.Request) (providers.Result, error) {
		return providers.Result{}, pkgerrors.Wrap(pkgerrors.CodeVendor, errors.New("502"), "apigames request failed")
	}}
	h := newHarness(t, 50*time.Millisecond, slow, broken)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	v1 := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(v1.ID, enums.ProviderTokoVoucher, "FF5", 900, true)
	v2 := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(v2.ID, enums.ProviderAPIGames, "FF5", 950, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: v1.ID, UnitPrice: 1000, Target: dbtest.Ptr("1")},
		dbtest.ItemSpec{VariantID: v2.ID, UnitPrice: 1000, Target: dbtest.Ptr("2")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, enums.OrderStatusCanceled, report.Status)

	got := h.order(t, order.ID)
	assert.Contains(t, *got.Items[0].Note, "panic")
	assert.Contains(t, *got.Items[1].Note, "apigames request failed")
	assert.Equal(t, int64(1), h.refundRows(t, user.ID))
}

func TestFulfillTimesOutSlowVendors(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond, &blockingGateway{code: enums.ProviderDigiflazz})
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "ML86", 19000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 21000, Target: dbtest.Ptr("1|2")},
	)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	item := h.order(t, order.ID).Items[0]
	require.True(t, item.Failed())
	assert.Contains(t, *item.Note, noteVendorNoResponse)
}

type blockingGateway struct {
	code enums.ProviderCode
}

func (g *blockingGateway) Code() enums.ProviderCode { return g.code }

func (g *blockingGateway) Dispatch(ctx context.Context, _ providers.Request) (providers.Result, error) {
	<-ctx.Done()
	return providers.Result{}, ctx.Err()
}

func TestFulfillRejectsUnpaidOrders(t *testing.T) {
	h := newHarness(t, time.Second)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryDigital)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryStocked)
	order := h.seed.Order(user.ID, enums.OrderStatusPending, dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 1})

	_, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.engine.Fulfill(context.Background(), uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestClassifyRoutesByCategory(t *testing.T) {
	item := func(category enums.CategoryType) models.OrderItem {
		return models.OrderItem{Variant: &models.ProductVariant{Product: &models.Product{CategoryType: category}}}
	}
	assert.Equal(t, PathStock, classify(item(enums.CategoryDigital)))
	assert.Equal(t, PathProvider, classify(item(enums.CategoryGame)))
	assert.Equal(t, PathProvider, classify(item(enums.CategoryPulsa)))
	assert.Equal(t, PathProvider, classify(item(enums.CategorySosmed)))
	assert.Equal(t, PathManual, classify(item(enums.CategoryOther)))
	assert.Equal(t, PathManual, classify(models.OrderItem{}))
}

type checkingGateway struct {
	*fakeGateway
	check func(q providers.StatusQuery) (providers.Result, error)

	checks []providers.StatusQuery
}

func (g *checkingGateway) CheckStatus(ctx context.Context, q providers.StatusQuery) (providers.Result, error) {
	g.mu.Lock()
	g.checks = append(g.checks, q)
	g.mu.Unlock()
	return g.check(q)
}

func TestFulfillPollsPendingItemInsteadOfResubmitting(t *testing.T) {
	vendorStatus := enums.ProviderStatusPending
	medan := &checkingGateway{
		fakeGateway: &fakeGateway{code: enums.ProviderMedanPedia, respond: func(providers.Request) (providers.Result, error) {
			return providers.Result{Status: enums.ProviderStatusPending, TrxID: "77"}, nil
		}},
		check: func(q providers.StatusQuery) (providers.Result, error) {
			return providers.Result{Status: vendorStatus, TrxID: q.TrxID, SN: "done"}, nil
		},
	}
	h := newHarness(t, time.Second, medan)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategorySosmed)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderMedanPedia, "301", 1000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, Quantity: 500, UnitPrice: 20, Target: dbtest.Ptr("https://instagram.com/p/x")},
	)

	for run := 0; run < 3; run++ {
		report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusProcessing, report.Status)
		assert.Equal(t, 1, report.Pending)
	}
	assert.Equal(t, 1, medan.callCount(), "an accepted order is never placed twice")
	require.Len(t, medan.checks, 2)
	assert.Equal(t, "77", medan.checks[0].TrxID)
	assert.Equal(t, "301", medan.checks[0].SKU)
	assert.Equal(t, int64(1), h.events(t, enums.EventOrderItemFulfilled), "an unchanged poll writes nothing")

	vendorStatus = enums.ProviderStatusSuccess
	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, report.Status)
	assert.Equal(t, 1, medan.callCount())

	item := h.order(t, order.ID).Items[0]
	assert.True(t, item.Succeeded())
	assert.Equal(t, "77", *item.ProviderTrxID)
	assert.NotNil(t, item.FulfilledAt)
}

func TestFulfillPendingVendorFailureIsRefunded(t *testing.T) {
	medan := &checkingGateway{
		fakeGateway: &fakeGateway{code: enums.ProviderMedanPedia, respond: func(providers.Request) (providers.Result, error) {
			return providers.Result{Status: enums.ProviderStatusPending, TrxID: "78"}, nil
		}},
		check: func(q providers.StatusQuery) (providers.Result, error) {
			return providers.Result{Status: enums.ProviderStatusFailed, TrxID: q.TrxID, Message: "medanpedia order error"}, nil
		},
	}
	h := newHarness(t, time.Second, medan)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategorySosmed)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderMedanPedia, "301", 1000, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, Quantity: 100, UnitPrice: 20, Target: dbtest.Ptr("https://instagram.com/p/y")},
	)

	_, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, report.Status)
	assert.Equal(t, 1, medan.callCount())
	assert.Equal(t, int64(1), h.refundRows(t, user.ID))
}

func TestFulfillPendingItemStaysWithItsVendor(t *testing.T) {
	digi := &fakeGateway{code: enums.ProviderDigiflazz, respond: succeed("SN-D")}
	toko := &fakeGateway{code: enums.ProviderTokoVoucher, respond: func(providers.Request) (providers.Result, error) {
		return providers.Result{Status: enums.ProviderStatusPending, TrxID: "TV-5"}, nil
	}}
	h := newHarness(t, time.Second, digi, toko)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryGame)
	variant := h.seed.Variant(product.ID, dbtest.Ptr(enums.ProviderTokoVoucher), enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderTokoVoucher, "FF70", 9000, true)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "FF70D", 8800, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 10000, Target: dbtest.Ptr("777|88")},
	)

	_, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.ProductVariant{}).Where("id = ?", variant.ID).
		Update("best_provider", enums.ProviderDigiflazz).Error)

	report, err := h.engine.Fulfill(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, toko.callCount())
	assert.Equal(t, 0, digi.callCount(), "a pending item is not moved to a cheaper vendor")
	assert.Equal(t, noteAwaitingVendor, report.Items[0].Note)
}

func TestFulfillResendsPendingItemWithoutTrxUnderSameRef(t *testing.T) {
	digi := &fakeGateway{code: enums.ProviderDigiflazz, respond: func(providers.Request) (providers.Result, error) {
		return providers.Result{Status: enums.ProviderStatusPending}, nil
	}}
	h := newHarness(t, time.Second, digi)
	user := h.seed.User(0)
	product := h.seed.Product(enums.CategoryPulsa)
	variant := h.seed.Variant(product.ID, nil, enums.DeliveryAutomated)
	h.seed.Offer(variant.ID, enums.ProviderDigiflazz, "S10", 10200, true)
	order := h.seed.Order(user.ID, enums.OrderStatusProcessing,
		dbtest.ItemSpec{VariantID: variant.ID, UnitPrice: 11000, Target: dbtest.Ptr("08123")},
	)

	for run := 0; run < 2; run++ {
		_, err := h.engine.Fulfill(context.Background(), order.ID, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 2, digi.callCount())
	assert.Equal(t, digi.calls[0].RefID, digi.calls[1].RefID)
}

func TestSingleUnitRejectionIsTerminal(t *testing.T) {
	item := &models.OrderItem{
		ProviderStatus: ptr(enums.ProviderStatusFailed),
		Note:           ptr(providers.MsgSingleUnit),
	}
	assert.True(t, dataError(item))
}
