// Package security buffers security events and ships them to an external
// sink for SIEM-style monitoring. The buffer absorbs bursts and broker
// outages; shipping is best effort and never blocks the emitting operation.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "profilevault/pkg/platform/audit"
)

const (
	defaultTopic      = "profilevault.security"
	defaultBatchSize  = 100
	defaultFlushEvery = 2 * time.Second
)

// KafkaSink drains a ring buffer into a Kafka topic. Events are keyed by
// profile ID so per-profile ordering is preserved within a partition.
type KafkaSink struct {
	client *kgo.Client
	buffer *RingBuffer
	logger *slog.Logger

	topic      string
	batchSize  int
	flushEvery time.Duration
}

// KafkaConfig configures the sink. Brokers empty means the sink is disabled.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	BatchSize  int
	FlushEvery time.Duration
}

// NewKafkaSink connects to the brokers and ensures the topic exists.
// Returns (nil, nil) when no brokers are configured.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig, buffer *RingBuffer, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaSink{
		client:     client,
		buffer:     buffer,
		logger:     logger,
		topic:      cfg.Topic,
		batchSize:  cfg.BatchSize,
		flushEvery: cfg.FlushEvery,
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Enqueue buffers an event for shipping.
func (s *KafkaSink) Enqueue(event audit.Event) {
	s.buffer.Enqueue(event)
}

// Run flushes the buffer on a ticker until the context is cancelled, then
// performs a final flush.
func (s *KafkaSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *KafkaSink) flush(ctx context.Context) {
	for {
		batch := s.buffer.DequeueBatch(s.batchSize)
		if len(batch) == 0 {
			return
		}

		records := make([]*kgo.Record, 0, len(batch))
		for _, event := range batch {
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("security event not encodable, dropped", "action", event.Action, "error", err)
				continue
			}
			records = append(records, &kgo.Record{
				Key:   []byte(event.ProfileID),
				Value: payload,
			})
		}

		if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
			// Re-buffer so a broker blip does not lose the batch. The ring
			// buffer bounds memory if the outage persists.
			for _, event := range batch {
				s.buffer.Enqueue(event)
			}
			s.logger.Warn("security event batch not shipped", "count", len(batch), "error", err)
			return
		}
	}
}

// Close flushes remaining events and releases the Kafka client.
func (s *KafkaSink) Close() {
	s.flush(context.Background())
	s.client.Close()
}
