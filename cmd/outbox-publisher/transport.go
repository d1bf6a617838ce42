package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/vouchr/storefront-backend/pkg/outbox/registry"
)

type outboundMessage struct {
	Key        []byte
	Data       []byte
	Attributes map[string]string
}

type transport interface {
	Name() string
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg outboundMessage) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pubSubTransport struct {
	client pubSubClient
}

func newPubSubTransport(client pubSubClient) *pubSubTransport {
	return &pubSubTransport{client: client}
}

func (t *pubSubTransport) Name() string { return "pubsub" }

func (t *pubSubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubSubTransport) Publish(ctx context.Context, topic string, msg outboundMessage) error {
	pub := t.client.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

type kafkaPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type kafkaTransport struct {
	client kafkaPublisher
}

func newKafkaTransport(client kafkaPublisher) *kafkaTransport {
	return &kafkaTransport{client: client}
}

func (t *kafkaTransport) Name() string { return "kafka" }

func (t *kafkaTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *kafkaTransport) Publish(ctx context.Context, topic string, msg outboundMessage) error {
	if topic == "" {
		return registry.NewNonRetryableError(errors.New("kafka topic is empty"))
	}
	return t.client.Publish(ctx, topic, msg.Key, msg.Data, msg.Attributes)
}
