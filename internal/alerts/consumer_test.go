package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/outbox"
	"github.com/vouchr/storefront-backend/pkg/outbox/payloads"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, alert Alert) error {
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

type memoryIdempotency struct {
	seen    map[uuid.UUID]bool
	deleted int
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.seen == nil {
		m.seen = map[uuid.UUID]bool{}
	}
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, _ string, id uuid.UUID) error {
	delete(m.seen, id)
	m.deleted++
	return nil
}

func envelope(t *testing.T, eventID string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return out
}

func newConsumer(t *testing.T, n Notifier, idem *memoryIdempotency) *Consumer {
	t.Helper()
	c, err := NewConsumer(n, idem, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestHandleAttentionEventNotifiesOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newConsumer(t, notifier, &memoryIdempotency{})
	orderID := uuid.New()
	data := envelope(t, uuid.NewString(), payloads.OrderAttentionRequiredEvent{
		OrderID: orderID, InvoiceCode: "INV-7", Succeeded: 1, Failed: 1, Notes: []string{"ML86: Gagal"},
	})
	delivery := Delivery{MessageID: "m1", EventType: string(enums.EventOrderAttentionRequired), Data: data}

	assert.False(t, c.Handle(context.Background(), delivery))
	assert.False(t, c.Handle(context.Background(), delivery))

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, KindAttention, alert.Kind)
	assert.Equal(t, orderID, alert.OrderID)
	assert.Contains(t, alert.Text(), "INV-7")
	assert.Contains(t, alert.Text(), "ML86: Gagal")
}

func TestHandleRefundEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newConsumer(t, notifier, &memoryIdempotency{})
	data := envelope(t, uuid.NewString(), payloads.OrderRefundedEvent{
		OrderID: uuid.New(), InvoiceCode: "INV-8", UserID: uuid.New(), Amount: 52000, Reason: "all items failed",
	})

	assert.False(t, c.Handle(context.Background(), Delivery{EventType: string(enums.EventOrderRefunded), Data: data}))
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, KindRefunded, notifier.alerts[0].Kind)
	assert.Contains(t, notifier.alerts[0].Text(), "Rp 52000")
}

func TestHandleIgnoresOtherEventsAndBadPayloads(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newConsumer(t, notifier, &memoryIdempotency{})

	assert.False(t, c.Handle(context.Background(), Delivery{EventType: string(enums.EventOrderDelivered), Data: []byte("{}")}))
	assert.False(t, c.Handle(context.Background(), Delivery{EventType: string(enums.EventOrderRefunded), Data: []byte("not json")}))
	assert.False(t, c.Handle(context.Background(), Delivery{EventType: string(enums.EventOrderRefunded), Data: envelope(t, "bad-id", map[string]any{})}))
	assert.Empty(t, notifier.alerts)
}

func TestHandleRetriesWhenNotifierFails(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	idem := &memoryIdempotency{}
	c := newConsumer(t, notifier, idem)
	data := envelope(t, uuid.NewString(), payloads.OrderRefundedEvent{OrderID: uuid.New(), InvoiceCode: "INV-9"})
	delivery := Delivery{EventType: string(enums.EventOrderRefunded), Data: data}

	assert.True(t, c.Handle(context.Background(), delivery))
	assert.Equal(t, 1, idem.deleted)

	notifier.err = nil
	assert.False(t, c.Handle(context.Background(), delivery))
	assert.Len(t, notifier.alerts, 1)
}

type fakeReader struct {
	messages  []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func TestRunKafkaCommitsHandledMessages(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newConsumer(t, notifier, &memoryIdempotency{})
	reader := &fakeReader{messages: []kafka.Message{
		{
			Topic:   "vouchr-order-events",
			Offset:  4,
			Value:   envelope(t, uuid.NewString(), payloads.OrderRefundedEvent{OrderID: uuid.New(), InvoiceCode: "INV-10"}),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(enums.EventOrderRefunded)}},
		},
		{Topic: "vouchr-order-events", Offset: 5, Value: []byte("{}")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.RunKafka(ctx, reader)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, reader.committed, 2)
	assert.Len(t, notifier.alerts, 1)
}

func TestNewConsumerValidates(t *testing.T) {
	_, err := NewConsumer(nil, &memoryIdempotency{}, logger.Nop())
	assert.Error(t, err)
	_, err = NewConsumer(Nop{}, nil, logger.Nop())
	assert.Error(t, err)
	_, err = NewConsumer(Nop{}, &memoryIdempotency{}, nil)
	assert.Error(t, err)
}
