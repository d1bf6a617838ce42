package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/pkg/enums"
)

// OrderPaidEvent is emitted when the payment gateway confirms an order.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	InvoiceCode string    `json:"invoice_code"`
	UserID      uuid.UUID `json:"user_id"`
	TotalAmount int64     `json:"total_amount"`
	PaidAt      time.Time `json:"paid_at"`
}

// OrderItemFulfilledEvent records the outcome of one fulfillment attempt.
type OrderItemFulfilledEvent struct {
	OrderID     uuid.UUID            `json:"order_id"`
	OrderItemID uuid.UUID            `json:"order_item_id"`
	InvoiceCode string               `json:"invoice_code"`
	Path        string               `json:"path"`
	Outcome     enums.ProviderStatus `json:"outcome"`
	Provider    *enums.ProviderCode  `json:"provider,omitempty"`
	TrxID       *string              `json:"trx_id,omitempty"`
}

// OrderDeliveredEvent is emitted once every item succeeded.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	InvoiceCode string    `json:"invoice_code"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderFailedEvent is emitted when every item failed and a refund follows.
type OrderFailedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	InvoiceCode string    `json:"invoice_code"`
	FailedItems int       `json:"failed_items"`
}

// OrderRefundedEvent is emitted together with the wallet credit.
type OrderRefundedEvent struct {
	OrderID             uuid.UUID `json:"order_id"`
	InvoiceCode         string    `json:"invoice_code"`
	UserID              uuid.UUID `json:"user_id"`
	Amount              int64     `json:"amount"`
	Reason              string    `json:"reason"`
	WalletTransactionID uuid.UUID `json:"wallet_transaction_id"`
}

// OrderCanceledEvent is emitted when an unpaid order expires or its payment fails.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	InvoiceCode string    `json:"invoice_code"`
	Reason      string    `json:"reason"`
}

// OrderAttentionRequiredEvent is emitted when a fulfillment run leaves an order
// PROCESSING with items an operator has to look at.
type OrderAttentionRequiredEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	InvoiceCode  string    `json:"invoice_code"`
	Succeeded    int       `json:"succeeded"`
	Pending      int       `json:"pending"`
	Failed       int       `json:"failed"`
	Insufficient int       `json:"insufficient"`
	Manual       int       `json:"manual"`
	Notes        []string  `json:"notes,omitempty"`
}

// StockDepletedEvent is emitted when a claim leaves a variant with no available stock.
type StockDepletedEvent struct {
	VariantID uuid.UUID `json:"variant_id"`
	Remaining int       `json:"remaining"`
}

// BestProviderChangedEvent is emitted when routing moves a variant to another vendor.
type BestProviderChangedEvent struct {
	VariantID     uuid.UUID           `json:"variant_id"`
	Previous      *enums.ProviderCode `json:"previous,omitempty"`
	Current       enums.ProviderCode  `json:"current"`
	OriginalPrice int64               `json:"original_price"`
	Price         int64               `json:"price"`
}
