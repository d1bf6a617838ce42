package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vouchr/storefront-backend/api/controllers"
	catalogcontrollers "github.com/vouchr/storefront-backend/api/controllers/catalog"
	ordercontrollers "github.com/vouchr/storefront-backend/api/controllers/orders"
	stockcontrollers "github.com/vouchr/storefront-backend/api/controllers/stock"
	webhookcontrollers "github.com/vouchr/storefront-backend/api/controllers/webhooks"
	"github.com/vouchr/storefront-backend/api/middleware"
	"github.com/vouchr/storefront-backend/internal/catalog"
	"github.com/vouchr/storefront-backend/internal/fulfillment"
	"github.com/vouchr/storefront-backend/internal/orders"
	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/internal/stock"
	paymentwebhook "github.com/vouchr/storefront-backend/internal/webhooks/payment"
	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/redis"
)

type catalogSyncer interface {
	Run(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	RateLimiter redis.RateLimiter
	Gatherer    prometheus.Gatherer

	Orders       orders.Service
	Engine       fulfillment.Engine
	Refunds      refunds.Service
	Catalog      catalog.Service
	CatalogSync  catalogSyncer
	Stock        stock.Pool
	PaymentHooks *paymentwebhook.Service
	PaymentGuard *paymentwebhook.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	webhookPolicy := middleware.NewRateLimitPolicy(
		"payment-webhook",
		cfg.Webhooks.PaymentRateWindow,
		cfg.Webhooks.PaymentRateLimit,
	)
	var (
		paymentHooks webhookcontrollers.PaymentWebhookService
		paymentGuard webhookGuard
	)
	if deps.PaymentHooks != nil {
		paymentHooks = deps.PaymentHooks
	}
	if deps.PaymentGuard != nil {
		paymentGuard = deps.PaymentGuard
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, deps.RateLimiter, logg)).
			Post("/payment", webhookcontrollers.PaymentWebhook(paymentHooks, paymentGuard, cfg.Webhooks.PaymentSecret, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleOperator))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))
		adminOnly := middleware.RequireRole(logg, enums.OperatorRoleAdmin)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/invoice/{invoiceCode}", ordercontrollers.DetailByInvoice(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/fulfill", ordercontrollers.Fulfill(deps.Engine, logg))
			r.With(adminOnly).Post("/{orderId}/refund", ordercontrollers.Refund(deps.Refunds, logg))
		})
		r.Route("/stock/{variantId}", func(r chi.Router) {
			r.Get("/", stockcontrollers.Level(deps.Stock, logg))
			r.Post("/restock", stockcontrollers.Restock(deps.Stock, logg))
		})
		r.Route("/catalog", func(r chi.Router) {
			r.Use(adminOnly)
			r.Put("/offers", catalogcontrollers.UpsertOffer(deps.Catalog, logg))
			r.Post("/variants/{variantId}/recompute", catalogcontrollers.Recompute(deps.Catalog, logg))
			r.Post("/sync", catalogcontrollers.Sync(deps.CatalogSync, logg))
		})
	})

	return r
}
