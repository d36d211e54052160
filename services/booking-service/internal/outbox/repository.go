package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/dentalbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dentalbook/libs/otel"
	"github.com/segmentio/kafka-go"
)

// ErrInvalidEvent rejects an event the publisher could not route.
var ErrInvalidEvent = errors.New("invalid outbox event")

// Execer is satisfied by pgx.Tx; events must be written on the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads and writes the outbox_events table.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func validate(evt Event) error {
	switch evt.AggregateType {
	case AggregateAppointment, AggregateDentist:
	default:
		return fmt.Errorf("%w: unknown aggregate %q", ErrInvalidEvent, evt.AggregateType)
	}
	if evt.AggregateID == "" || evt.EventType == "" {
		return fmt.Errorf("%w: %s event needs an aggregate id and a type", ErrInvalidEvent, evt.AggregateType)
	}
	return nil
}

// Insert records events on tx along with the trace context of ctx, so the publisher can
// continue the booking trace. Nothing is written if any event fails validation.
func (r *Repository) Insert(ctx context.Context, tx Execer, events ...Event) error {
	for _, evt := range events {
		if err := validate(evt); err != nil {
			return err
		}
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, evt := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate); err != nil {
			return fmt.Errorf("outbox insert %s: %w", evt.EventType, err)
		}
	}
	return nil
}

// Pending is an unpublished outbox row.
type Pending struct {
	ID          int64
	EventID     string
	Event       Event
	Traceparent string
	Tracestate  string
}

// Message builds the Kafka message for p. The topic is the event type and the key is the
// aggregate id, so one appointment's events stay ordered on a partition.
func (p Pending) Message(ctx context.Context) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, p.Traceparent, p.Tracestate)
	meta := kafkax.EventMeta{EventID: p.EventID, EventType: p.Event.EventType}
	return kafka.Message{
		Topic:   p.Event.EventType,
		Key:     []byte(p.Event.AggregateID),
		Value:   p.Event.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
	}
}

// FetchUnpublished locks up to limit pending rows in insert order. Rows locked by another
// publisher are skipped.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Pending, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Pending, error) {
		var p Pending
		err := row.Scan(&p.ID, &p.EventID, &p.Event.AggregateType, &p.Event.AggregateID, &p.Event.EventType,
			&p.Event.Payload, &p.Traceparent, &p.Tracestate)
		return p, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}
