package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateVariant OutboxAggregateType = "product_variant"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateVariant,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event emitted through the outbox.
type OutboxEventType string

const (
	EventOrderPaid              OutboxEventType = "order_paid"
	EventOrderItemFulfilled     OutboxEventType = "order_item_fulfilled"
	EventOrderDelivered         OutboxEventType = "order_delivered"
	EventOrderFailed            OutboxEventType = "order_failed"
	EventOrderRefunded          OutboxEventType = "order_refunded"
	EventOrderCanceled          OutboxEventType = "order_canceled"
	EventOrderAttentionRequired OutboxEventType = "order_attention_required"
	EventStockDepleted          OutboxEventType = "stock_depleted"
	EventBestProviderChanged    OutboxEventType = "best_provider_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderItemFulfilled,
	EventOrderDelivered,
	EventOrderFailed,
	EventOrderRefunded,
	EventOrderCanceled,
	EventOrderAttentionRequired,
	EventStockDepleted,
	EventBestProviderChanged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
