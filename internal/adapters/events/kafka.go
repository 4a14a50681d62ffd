// internal/adapters/events/kafka.go
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds broker settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaPublisher writes stock change events to a topic keyed by stock key,
// so events for one key stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

var _ ports.StockEventPublisher = (*KafkaPublisher)(nil)

// NewKafkaWriter builds a writer for cfg
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaPublisher wraps a writer
func NewKafkaPublisher(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger.With(slog.String("publisher", "kafka")),
	}
}

// PublishStockChanged writes all events in one batch
func (p *KafkaPublisher) PublishStockChanged(ctx context.Context, events ...domain.StockChangedEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := Encode(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Signal().Key().String()),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(TypeStockChanged)},
				{Key: "cause", Value: []byte(e.Cause)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write stock events: %w", err)
	}

	p.logger.DebugContext(ctx, "stock events written", slog.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer feeds stock change events from a topic into a handler
type KafkaConsumer struct {
	reader  MessageReader
	handler Handler
	logger  *slog.Logger
}

// NewKafkaReader builds a consumer group reader for cfg
func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// NewKafkaConsumer creates a consumer
func NewKafkaConsumer(reader MessageReader, handler Handler, logger *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger.With(slog.String("consumer", "kafka")),
	}
}

// Run reads until ctx is cancelled. A message is committed once handled or
// once it is known to be undecodable; handler failures leave it uncommitted
// so it is redelivered after a rebalance or restart.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "stock event consumer started")
	defer c.logger.InfoContext(context.Background(), "stock event consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch stock event", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.WarnContext(ctx, "stock event not handled",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "failed to commit stock event", slog.String("error", err.Error()))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	event, err := Decode(msg.Value)
	if err != nil {
		// poison message: log and let Run commit it
		c.logger.ErrorContext(ctx, "dropping malformed stock event",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()))
		return nil
	}
	return c.handler(ctx, event)
}

// Close closes the reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
