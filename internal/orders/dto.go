package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/pkg/db/models"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/pagination"
)

// OrderDTO is the operator-facing view of an order.
type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	InvoiceCode  string            `json:"invoice_code"`
	UserID       uuid.UUID         `json:"user_id"`
	Status       enums.OrderStatus `json:"status"`
	TotalAmount  int64             `json:"total_amount"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
	DeliveredAt  *time.Time        `json:"delivered_at,omitempty"`
	CanceledAt   *time.Time        `json:"canceled_at,omitempty"`
	CancelReason *string           `json:"cancel_reason,omitempty"`
	Items        []OrderItemDTO    `json:"items,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// OrderItemDTO exposes the persisted fulfillment fields of a line.
type OrderItemDTO struct {
	ID             uuid.UUID             `json:"id"`
	VariantID      uuid.UUID             `json:"variant_id"`
	VariantName    string                `json:"variant_name,omitempty"`
	Quantity       int                   `json:"quantity"`
	UnitPrice      int64                 `json:"unit_price"`
	Subtotal       int64                 `json:"subtotal"`
	Target         *string               `json:"target,omitempty"`
	Note           *string               `json:"note,omitempty"`
	ProviderCode   *enums.ProviderCode   `json:"provider_code,omitempty"`
	ProviderStatus *enums.ProviderStatus `json:"provider_status,omitempty"`
	ProviderTrxID  *string               `json:"provider_trx_id,omitempty"`
	SN             *string               `json:"sn,omitempty"`
	FulfilledAt    *time.Time            `json:"fulfilled_at,omitempty"`
}

// NewOrderDTO maps a loaded order; items are included when preloaded.
func NewOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:           order.ID,
		InvoiceCode:  order.InvoiceCode,
		UserID:       order.UserID,
		Status:       order.Status,
		TotalAmount:  order.TotalAmount,
		PaidAt:       order.PaidAt,
		DeliveredAt:  order.DeliveredAt,
		CanceledAt:   order.CanceledAt,
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt,
	}
	for _, item := range order.Items {
		row := OrderItemDTO{
			ID:             item.ID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal,
			Target:         item.Target,
			Note:           item.Note,
			ProviderCode:   item.ProviderCode,
			ProviderStatus: item.ProviderStatus,
			ProviderTrxID:  item.ProviderTrxID,
			SN:             item.SN,
			FulfilledAt:    item.FulfilledAt,
		}
		if item.Variant != nil {
			row.VariantName = item.Variant.Name
		}
		dto.Items = append(dto.Items, row)
	}
	return dto
}

// NewOrderPageDTO maps a page of orders without their items.
func NewOrderPageDTO(page pagination.Page[models.Order]) pagination.Page[OrderDTO] {
	out := pagination.Page[OrderDTO]{
		Items:      make([]OrderDTO, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for _, order := range page.Items {
		out.Items = append(out.Items, NewOrderDTO(order))
	}
	return out
}
