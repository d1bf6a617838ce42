package fulfillment

import (
	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/internal/refunds"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

// Path is the channel an item was routed to.
type Path string

const (
	PathStock    Path = "stock"
	PathProvider Path = "provider"
	PathManual   Path = "manual"
)

// ItemReport is the outcome of one item in one run. Outcome is nil for items
// that were skipped or left to an operator.
type ItemReport struct {
	ItemID    uuid.UUID             `json:"item_id"`
	VariantID uuid.UUID             `json:"variant_id"`
	Path      Path                  `json:"path"`
	Provider  *enums.ProviderCode   `json:"provider,omitempty"`
	Outcome   *enums.ProviderStatus `json:"outcome,omitempty"`
	TrxID     string                `json:"trx_id,omitempty"`
	Note      string                `json:"note,omitempty"`
	Skipped   bool                  `json:"skipped"`
	Error     string                `json:"error,omitempty"`
}

// Report summarizes a Fulfill run.
type Report struct {
	OrderID      uuid.UUID         `json:"order_id"`
	InvoiceCode  string            `json:"invoice_code"`
	StatusBefore enums.OrderStatus `json:"status_before"`
	Status       enums.OrderStatus `json:"status"`
	Items        []ItemReport      `json:"items"`
	Succeeded    int               `json:"succeeded"`
	Pending      int               `json:"pending"`
	Failed       int               `json:"failed"`
	Insufficient int               `json:"insufficient"`
	Manual       int               `json:"manual"`
	Refund       *refunds.Result   `json:"refund,omitempty"`
}

// Dispatched reports how many items were attempted in this run.
func (r *Report) Dispatched() int {
	n := 0
	for _, item := range r.Items {
		if !item.Skipped && item.Path != PathManual {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T {
	return &v
}
