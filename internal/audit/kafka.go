package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"onboard/internal/platform/config"
)

// KafkaSink streams events to a single topic. Produces are asynchronous and
// fire-and-forget; delivery failures are logged, never surfaced to callers.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the configured brokers and ensures the topic
// exists. Returns (nil, nil) when no brokers are configured.
func NewKafkaSink(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "onboard.provision.events"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		if !errors.Is(err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
		}
	}

	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

// Produce sends the event keyed by site so a tenant's events stay ordered.
func (s *KafkaSink) Produce(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	value, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("audit event encode failed", "type", e.Type, "error", err)
		return
	}
	record := &kgo.Record{Topic: s.topic, Key: []byte(e.Site), Value: value}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("audit event publish failed", "type", e.Type, "error", err)
		}
	})
}

// Close flushes pending produces and releases the client.
func (s *KafkaSink) Close(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("audit sink flush failed", "error", err)
	}
	s.client.Close()
}
