package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics tracks per-item outcomes, vendor latency and refunds.
type FulfillmentMetrics struct {
	items    *prometheus.CounterVec
	dispatch *prometheus.HistogramVec
	refunds  prometheus.Counter
}

// NewFulfillmentMetrics registers the fulfillment collectors on reg. A nil
// registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_items_total",
		Help: "Order items processed by the fulfillment engine.",
	}, []string{"path", "outcome"})
	dispatch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendor_dispatch_seconds",
		Help:    "Latency of vendor dispatch calls.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"provider", "status"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_refunded_total",
		Help: "Orders refunded to the customer wallet.",
	})
	reg.MustRegister(items, dispatch, refunds)
	return &FulfillmentMetrics{
		items:    items,
		dispatch: dispatch,
		refunds:  refunds,
	}
}

func (m *FulfillmentMetrics) IncItem(path, outcome string) {
	if m == nil || m.items == nil {
		return
	}
	m.items.WithLabelValues(normalizeLabel(path), normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) ObserveDispatch(provider, status string, duration time.Duration) {
	if m == nil || m.dispatch == nil {
		return
	}
	m.dispatch.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Observe(duration.Seconds())
}

func (m *FulfillmentMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}
