package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

// Handler processes one message. A returned error is retried with backoff up
// to MaxAttempts before the message is skipped.
type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper records processed event ids (an inbox table).
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topics      []string
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      MessageReader
	logger      *slog.Logger
	inbox       Deduper
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(logger *slog.Logger, inbox Deduper, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(reader, logger, inbox, cfg, handler)
}

func newConsumer(reader MessageReader, logger *slog.Logger, inbox Deduper, cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Run fetches until ctx is done. Offsets are committed after the message is
// handled (or given up on), so a crash mid-handler redelivers it and the inbox
// filters what already succeeded.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	meta := ExtractEventMeta(msg)
	ctxSpan, span := startConsumeSpan(ctx, msg, meta)
	defer span.End()

	if c.inbox != nil {
		seen, err := c.inbox.Seen(ctxSpan, meta.EventID)
		if err != nil {
			c.logger.Error("inbox lookup failed", "err", err, "event_id", meta.EventID)
		} else if seen {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return
		}
	}

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctxSpan, msg); err == nil {
			break
		}
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt < c.maxAttempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return
		}
	}
	if err != nil {
		c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if c.inbox != nil {
		if _, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType); err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
