package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/dentalbook/libs/kafkax"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/inbox"
	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	msgs   []kafka.Message
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func msg(id string) kafka.Message {
	return kafka.Message{
		Topic:   "catalog.service.upserted.v1",
		Headers: kafkax.EventMeta{EventID: id, EventType: "catalog.service.upserted.v1"}.Headers(),
		Value:   []byte(`{}`),
	}
}

func TestRunDedupesAndSurvivesHandlerErrors(t *testing.T) {
	reader := &sliceReader{msgs: []kafka.Message{msg("e1"), msg("e1"), msg("e2"), msg("e3")}}

	var handled []string
	handler := func(_ context.Context, m kafka.Message) error {
		id := kafkax.ExtractEventMeta(m).EventID
		handled = append(handled, id)
		if id == "e2" {
			return errors.New("bad event")
		}
		return nil
	}

	outcomes := map[string]int{}
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), inbox.NewMemory(), reader, handler)
	c.observed = func(_, outcome string) { outcomes[outcome]++ }
	c.Run(context.Background())

	if len(handled) != 3 || handled[0] != "e1" || handled[1] != "e2" || handled[2] != "e3" {
		t.Fatalf("unexpected handled sequence %v", handled)
	}
	if outcomes["handled"] != 2 || outcomes["duplicate"] != 1 || outcomes["failed"] != 1 {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	if !reader.closed {
		t.Fatalf("reader should be closed when Run returns")
	}
}
