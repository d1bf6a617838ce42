package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
	"github.com/vouchr/storefront-backend/pkg/outbox/registry"
)

const consumerName = "operator-alerts"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Delivery is one order event as received from either transport.
type Delivery struct {
	MessageID string
	EventType string
	Data      []byte
}

// Consumer turns order events into operator alerts.
type Consumer struct {
	notifier    Notifier
	idempotency idempotencyChecker
	decoders    *registry.DecoderRegistry
	logg        *logger.Logger
}

func alertDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventOrderAttentionRequired, 1, registry.JSONDecoder[payloads.OrderAttentionRequiredEvent]())
	decoders.Register(enums.EventOrderRefunded, 1, registry.JSONDecoder[payloads.OrderRefundedEvent]())
	return decoders
}

// NewConsumer builds the alerts consumer.
func NewConsumer(notifier Notifier, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{notifier: notifier, idempotency: manager, decoders: alertDecoders(), logg: logg}, nil
}

// RunPubSub consumes the orders subscription until ctx is canceled.
func (c *Consumer) RunPubSub(ctx context.Context, sub receiver) error {
	if sub == nil {
		return errors.New("subscription required")
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		retry := c.Handle(ctx, Delivery{
			MessageID: msg.ID,
			EventType: msg.Attributes["event_type"],
			Data:      msg.Data,
		})
		if retry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// RunKafka consumes the orders topic until ctx is canceled. A message that
// asks for a retry is not committed, so it is redelivered after a rebalance.
func (c *Consumer) RunKafka(ctx context.Context, reader kafkaReader) error {
	if reader == nil {
		return errors.New("kafka reader required")
	}
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}
		delivery := Delivery{
			MessageID: fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
			Data:      msg.Value,
		}
		for _, h := range msg.Headers {
			if h.Key == "event_type" {
				delivery.EventType = string(h.Value)
			}
		}
		if c.Handle(ctx, delivery) {
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit kafka message: %w", err)
		}
	}
}

// Handle processes one delivery and reports whether it should be retried.
func (c *Consumer) Handle(ctx context.Context, delivery Delivery) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": delivery.MessageID,
		"event_type": delivery.EventType,
	})

	eventType := enums.OutboxEventType(delivery.EventType)
	if !c.decoders.Handles(eventType) {
		c.logg.Debug(logCtx, "skipping event without alert")
		return false
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(delivery.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return false
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return false
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return false
	}

	alert, err := c.buildAlert(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return false
	}
	logCtx = c.logg.WithInvoice(logCtx, alert.InvoiceCode)
	if err := c.notifier.Notify(ctx, alert); err != nil {
		c.logg.Error(logCtx, "alert delivery failed", err)
		_ = c.idempotency.Delete(ctx, consumerName, eventID)
		return true
	}
	c.logg.Info(logCtx, "operator alerted")
	return false
}

func (c *Consumer) buildAlert(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (Alert, error) {
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		return Alert{}, err
	}
	switch payload := decoded.(type) {
	case *payloads.OrderAttentionRequiredEvent:
		return AttentionAlert(*payload), nil
	case *payloads.OrderRefundedEvent:
		return RefundAlert(*payload), nil
	}
	return Alert{}, fmt.Errorf("no alert for %s", eventType)
}

// AttentionAlert summarizes an order left partially fulfilled.
func AttentionAlert(e payloads.OrderAttentionRequiredEvent) Alert {
	lines := []string{
		fmt.Sprintf("succeeded %d, pending %d, failed %d, out of stock %d, manual %d",
			e.Succeeded, e.Pending, e.Failed, e.Insufficient, e.Manual),
	}
	lines = append(lines, e.Notes...)
	return Alert{
		Kind:        KindAttention,
		OrderID:     e.OrderID,
		InvoiceCode: e.InvoiceCode,
		Title:       "Order needs manual follow-up",
		Lines:       lines,
	}
}

// RefundAlert reports a wallet refund.
func RefundAlert(e payloads.OrderRefundedEvent) Alert {
	return Alert{
		Kind:        KindRefunded,
		OrderID:     e.OrderID,
		InvoiceCode: e.InvoiceCode,
		Title:       fmt.Sprintf("Refunded Rp %d to wallet", e.Amount),
		Lines:       []string{"user " + e.UserID.String(), e.Reason},
	}
}
