package consumer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/dentalbook/libs/kafkax"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader   MessageReader
	logger   *slog.Logger
	inbox    inbox.Recorder
	handler  Handler
	backoff  time.Duration
	observed func(topic, outcome string)
}

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
	// Observe, if set, is called with "handled", "duplicate" or "failed" per message.
	Observe func(topic, outcome string)
}

func New(logger *slog.Logger, recorder inbox.Recorder, cfg Config, handler Handler) *Consumer {
	reader := kafkax.NewReader(kafkax.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	c := NewWithReader(logger, recorder, reader, handler)
	c.observed = cfg.Observe
	return c
}

func NewWithReader(logger *slog.Logger, recorder inbox.Recorder, reader MessageReader, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   recorder,
		handler: handler,
		backoff: time.Second,
	}
}

// Run reads until ctx is cancelled or the reader is closed. Every message is committed
// once processed, even when the handler fails, so a poison message cannot stall the group.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		c.observe(msg.Topic, "failed")
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		c.observe(msg.Topic, "duplicate")
		return
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
		c.observe(msg.Topic, "failed")
		return
	}
	c.observe(msg.Topic, "handled")
}

func (c *Consumer) observe(topic, outcome string) {
	if c.observed != nil {
		c.observed(topic, outcome)
	}
}
