package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// TopicServiceUpserted carries catalog changes published by the clinic-management side.
const TopicServiceUpserted = "catalog.service.upserted.v1"

type serviceUpserted struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// EventHandler keeps the local services table in step with catalog events.
type EventHandler struct {
	store     ServiceStore
	durations *Durations
	logger    *slog.Logger
}

func NewEventHandler(store ServiceStore, durations *Durations, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: store, durations: durations, logger: logger}
}

// Handle upserts the service and evicts its cached duration. Malformed payloads are logged
// and dropped so they do not block the partition; store errors are returned.
func (h *EventHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var payload serviceUpserted
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("invalid catalog event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	payload.ServiceID = strings.TrimSpace(payload.ServiceID)
	if payload.ServiceID == "" || payload.DurationMinutes <= 0 {
		h.logger.Error("catalog event missing service_id or positive duration_minutes", "topic", msg.Topic, "service_id", payload.ServiceID)
		return nil
	}

	if err := h.store.UpsertService(ctx, model.Service{
		ID:              payload.ServiceID,
		Name:            payload.Name,
		DurationMinutes: payload.DurationMinutes,
	}); err != nil {
		return fmt.Errorf("upsert service %s: %w", payload.ServiceID, err)
	}
	if err := h.durations.Evict(ctx, payload.ServiceID); err != nil {
		h.logger.Warn("service duration cache evict failed", "service_id", payload.ServiceID, "err", err)
	}
	h.logger.Info("service catalog updated", "service_id", payload.ServiceID, "duration_minutes", payload.DurationMinutes)
	return nil
}
