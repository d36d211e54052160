package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Reason: model.ReasonFormat})
}

// writeError maps a facade error onto a status code. Infrastructure failures are logged
// and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var rej *model.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, statusForReason(rej.Reason), errorResponse{Error: rej.Error(), Reason: rej.Reason})
	case errors.Is(err, model.ErrFormat):
		writeBadRequest(w, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func statusForReason(reason string) int {
	switch reason {
	case model.ReasonFormat:
		return http.StatusBadRequest
	case model.ReasonInvalidTimeRange, model.ReasonInvalidDay, model.ReasonPastDateTime,
		model.ReasonOutsideWorkingHours, model.ReasonInvalidDuration:
		return http.StatusUnprocessableEntity
	case model.ReasonRuleOverlap, model.ReasonSlotConflict, model.ReasonInvalidStatusTransition:
		return http.StatusConflict
	case model.ReasonForbidden:
		return http.StatusForbidden
	case model.ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// actorFromRequest reads the caller identity the gateway forwards.
func actorFromRequest(r *http.Request) model.Actor {
	return model.Actor{
		UserID: strings.TrimSpace(r.Header.Get("X-User-Id")),
		Role:   strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role"))),
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
