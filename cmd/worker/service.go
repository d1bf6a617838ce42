package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vouchr/storefront-backend/internal/alerts"
	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/kafka"
	"github.com/vouchr/storefront-backend/pkg/pubsub"
	"github.com/vouchr/storefront-backend/pkg/redis"
)

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *redis.Client
	PubSub   *pubsub.Client
	Consumer *alerts.Consumer
}

// Service runs the operator alerts consumer on the configured transport.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	redis    *redis.Client
	pubsub   *pubsub.Client
	consumer *alerts.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("alerts consumer is required")
	}
	if !params.Config.Eventing.UsesKafka() && params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		consumer: params.Consumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if s.pubsub != nil {
		if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	var err error
	if s.cfg.Eventing.UsesKafka() {
		err = s.runKafka(ctx)
	} else {
		s.logg.Info(s.logg.WithField(ctx, "subscription", s.cfg.PubSub.OrdersSubscription), "consuming order events from pubsub")
		err = s.consumer.RunPubSub(ctx, s.pubsub.OrdersSubscription())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "alerts consumer stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}

func (s *Service) runKafka(ctx context.Context) error {
	reader, err := kafka.NewReader(s.cfg.Kafka, s.cfg.PubSub.OrdersTopic)
	if err != nil {
		return fmt.Errorf("kafka reader: %w", err)
	}
	defer closeQuietly(ctx, s.logg, "kafka reader", reader)
	s.logg.Info(s.logg.WithField(ctx, "topic", s.cfg.PubSub.OrdersTopic), "consuming order events from kafka")
	return s.consumer.RunKafka(ctx, reader)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
