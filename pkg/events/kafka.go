package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// ClientID identifies this producer to the brokers. Defaults to
	// franz-go's client ID.
	ClientID string

	Logger hclog.Logger
}

// KafkaPublisher publishes storage events to a Kafka/Redpanda topic.
// Events are keyed by composite file ID so per-file ordering survives
// partitioning.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger hclog.Logger
}

// NewKafkaPublisher creates a Kafka-backed event publisher.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),

		// Producer durability settings
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Retry configuration
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		// Batching for better throughput
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1 << 20),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: cfg.Logger.Named("event-publisher"),
	}, nil
}

// Publish implements Publisher. The call blocks until the broker
// acknowledges the record.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.FileID
	if key == "" {
		key = event.FolderID
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.logger.Error("failed to publish event",
			"event_id", event.ID,
			"type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.logger.Debug("event published",
		"event_id", event.ID,
		"type", event.Type,
		"file_id", event.FileID)
	return nil
}

// Close flushes pending records and closes the client.
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close failed", "error", err)
	}
	p.client.Close()
	return nil
}
