package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"benefits/internal/fraudcheck/models"
	"benefits/internal/platform/config"
	"benefits/internal/platform/kafka"
	"benefits/pkg/platform/circuit"
)

// Kafka is the durable queue. Tasks are keyed by claim ID so retries of one
// claim stay on one partition. Offsets are committed only after every record
// of a poll has been handled.
type Kafka struct {
	producer *kgo.Client
	consumer *kgo.Client
	topic    string
	workers  int
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// WithBreaker replaces the default producer circuit breaker.
func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *Kafka) {
		k.breaker = b
	}
}

func NewKafka(cfg config.KafkaConfig, workers int, opts ...KafkaOption) (*Kafka, error) {
	if cfg.FraudTopic == "" {
		return nil, errors.New("fraud check topic is required")
	}
	if workers <= 0 {
		workers = 1
	}
	producer, err := kafka.NewClient(cfg,
		kgo.DefaultProduceTopic(cfg.FraudTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	consumer, err := kafka.NewClient(cfg,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.FraudTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		producer.Close()
		return nil, err
	}
	k := &Kafka{
		producer: producer,
		consumer: consumer,
		topic:    cfg.FraudTopic,
		workers:  workers,
		breaker:  circuit.New("fraud-check-producer"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// EnsureTopic provisions the task topic.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	return kafka.EnsureTopic(ctx, k.producer, k.topic, partitions, replication)
}

// Health pings the brokers.
func (k *Kafka) Health(ctx context.Context) error {
	return kafka.Health(ctx, k.producer)
}

// Enqueue produces the task synchronously. While the broker keeps failing
// the breaker rejects tasks without a network round trip.
func (k *Kafka) Enqueue(ctx context.Context, task models.Task) error {
	if !k.breaker.Allow() {
		return fmt.Errorf("enqueue task %s: %w", task.ID, circuit.ErrOpen)
	}
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	rec := &kgo.Record{Topic: k.topic, Key: []byte(task.ClaimID.String()), Value: value}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if k.breaker.RecordFailure() {
			k.logger.WarnContext(ctx, "fraud check producer circuit opened", "error", err)
		}
		return fmt.Errorf("produce task %s: %w", task.ID, err)
	}
	k.breaker.RecordSuccess()
	return nil
}

// Consume polls until ctx is cancelled or the client is closed.
func (k *Kafka) Consume(ctx context.Context, handler Handler) error {
	for {
		fetches := k.consumer.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.logger.ErrorContext(ctx, "fraud check fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		if err := k.handleBatch(ctx, records, handler); err != nil {
			// Uncommitted records are redelivered after restart or rebalance.
			k.logger.WarnContext(ctx, "fraud check batch left uncommitted", "records", len(records), "error", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if err := k.consumer.CommitRecords(ctx, records...); err != nil {
			k.logger.ErrorContext(ctx, "fraud check offset commit failed", "error", err)
		}
	}
}

func (k *Kafka) handleBatch(ctx context.Context, records []*kgo.Record, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(k.workers)
	for _, rec := range records {
		var task models.Task
		if err := json.Unmarshal(rec.Value, &task); err != nil {
			k.logger.ErrorContext(ctx, "dropping malformed fraud check task",
				"partition", rec.Partition, "offset", rec.Offset, "error", err)
			continue
		}
		g.Go(func() error {
			return handler(gctx, task)
		})
	}
	return g.Wait()
}

func (k *Kafka) Close() {
	k.consumer.Close()
	k.producer.Close()
}
