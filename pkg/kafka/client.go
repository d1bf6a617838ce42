package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Client publishes outbox events to Kafka. Writes are synchronous and wait for
// every in-sync replica, so a nil error means the broker has the message.
type Client struct {
	writer  messageWriter
	brokers []string
}

// NewClient builds a topic-less writer; each message names its own topic.
func NewClient(cfg config.KafkaConfig, logg *logger.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}
	if logg != nil {
		ctx := logg.WithField(context.Background(), "brokers", cfg.Brokers)
		logg.Info(ctx, "kafka writer initialized")
	}
	return &Client{writer: writer, brokers: cfg.Brokers}, nil
}

// Publish writes one message keyed by aggregate so events for the same order stay ordered.
func (c *Client) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if c == nil || c.writer == nil {
		return errors.New("kafka client not initialized")
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("kafka client not initialized")
	}
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

func (c *Client) Close() error {
	if c == nil || c.writer == nil {
		return nil
	}
	return c.writer.Close()
}

// NewReader returns a consumer-group reader for one topic. Offsets are
// committed explicitly by the caller after a message is handled.
func NewReader(cfg config.KafkaConfig, topic string) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka group id is required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}), nil
}
