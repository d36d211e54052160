package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestExtractEventMeta(t *testing.T) {
	meta := EventMeta{EventID: "evt-1", EventType: "catalog.service.upserted.v1"}
	msg := kafka.Message{Topic: "ignored", Key: []byte("key"), Headers: meta.Headers()}
	if got := ExtractEventMeta(msg); got != meta {
		t.Fatalf("unexpected meta: %+v", got)
	}

	fallback := ExtractEventMeta(kafka.Message{Topic: "topic-a", Key: []byte("svc-1")})
	if fallback.EventID != "svc-1" || fallback.EventType != "topic-a" {
		t.Fatalf("unexpected fallback meta: %+v", fallback)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("traceparent header missing: %v", headers)
	}

	// Injecting twice must not duplicate the header.
	headers = InjectTraceHeaders(ctx, headers)
	count := 0
	for _, h := range headers {
		if h.Key == "traceparent" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one traceparent header, got %d", count)
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch")
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error when no brokers are configured")
	}
}
