// Package app assembles the domain services shared by the api and cron-worker
// binaries.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vouchr/storefront-backend/internal/catalog"
	"github.com/vouchr/storefront-backend/internal/cron"
	"github.com/vouchr/storefront-backend/internal/fulfillment"
	"github.com/vouchr/storefront-backend/internal/ledger"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/providers"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/internal/stock"
	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/metrics"
	"github.com/vouchr/storefront-backend/pkg/outbox"
)

// Services is the wired domain layer.
type Services struct {
	OrdersRepo orders.Repository
	Orders     orders.Service
	Catalog    catalog.Service
	Stock      stock.Pool
	Refunds    refunds.Service
	Engine     fulfillment.Engine
	Providers  *providers.Registry
	Outbox     *outbox.Service
	OutboxRepo *outbox.Repository
	Metrics    *metrics.FulfillmentMetrics
}

// Build wires repositories, services and vendor gateways on top of dbClient.
// Collectors are registered on reg when it is non-nil.
func Build(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}

	var fulfillmentMetrics *metrics.FulfillmentMetrics
	if reg != nil {
		fulfillmentMetrics = metrics.NewFulfillmentMetrics(reg)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)
	ordersRepo := orders.NewRepository(dbClient.DB())

	orderSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceParams{
		Repo:          catalog.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Outbox:        outboxSvc,
		Logger:        logg,
		MarginPercent: cfg.Pricing.MarginPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	pool, err := stock.NewService(stock.ServiceParams{
		Repo:     stock.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Logger:   logg,
		Boundary: cfg.Fulfillment.StockBoundary,
	})
	if err != nil {
		return nil, fmt.Errorf("stock pool: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Orders:  ordersRepo,
		Ledger:  ledgerSvc,
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Logger:  logg,
		Metrics: fulfillmentMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("refund service: %w", err)
	}

	gateways, err := providers.NewRegistryFromConfig(cfg.Providers, logg)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	engine, err := fulfillment.NewEngine(fulfillment.EngineParams{
		Orders:        ordersRepo,
		Stock:         pool,
		Gateways:      gateways,
		Refunds:       refundSvc,
		Tx:            dbClient,
		Outbox:        outboxSvc,
		Logger:        logg,
		Metrics:       fulfillmentMetrics,
		VendorTimeout: cfg.Fulfillment.VendorTimeout,
		RefundReason:  cfg.Fulfillment.RefundDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment engine: %w", err)
	}

	return &Services{
		OrdersRepo: ordersRepo,
		Orders:     orderSvc,
		Catalog:    catalogSvc,
		Stock:      pool,
		Refunds:    refundSvc,
		Engine:     engine,
		Providers:  gateways,
		Outbox:     outboxSvc,
		OutboxRepo: outboxRepo,
		Metrics:    fulfillmentMetrics,
	}, nil
}

// CatalogSyncJob builds the vendor price feed sync for the cron worker and the
// operator sync route.
func (s *Services) CatalogSyncJob(logg *logger.Logger) (cron.Job, error) {
	return cron.NewCatalogSyncJob(cron.CatalogSyncJobParams{
		Logger:  logg,
		Catalog: s.Catalog,
		Listers: s.Providers.PriceListers(),
	})
}

// CronJobs returns every scheduled job in run order.
func (s *Services) CronJobs(cfg *config.Config, logg *logger.Logger) ([]cron.Job, error) {
	syncJob, err := s.CatalogSyncJob(logg)
	if err != nil {
		return nil, fmt.Errorf("catalog sync job: %w", err)
	}
	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:  logg,
		Pending: s.OrdersRepo,
		Orders:  s.Orders,
		TTL:     cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("order expiry job: %w", err)
	}
	reconcileJob, err := cron.NewFulfillmentReconcileJob(cron.FulfillmentReconcileJobParams{
		Logger: logg,
		Orders: s.OrdersRepo,
		Engine: s.Engine,
		Grace:  cfg.Fulfillment.ReconcileGrace,
		MaxAge: cfg.Fulfillment.ReconcileMaxAge,
		Batch:  cfg.Fulfillment.ReconcileBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment reconcile job: %w", err)
	}
	retention := cfg.Outbox.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: s.OutboxRepo,
		Retention:  retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{syncJob, expiryJob, reconcileJob, retentionJob}, nil
}
