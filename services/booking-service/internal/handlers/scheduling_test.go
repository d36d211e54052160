package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := scheduling.NewService(store, nil, nil, logger, scheduling.Config{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2030, time.January, 6, 12, 0, 0, 0, time.UTC) },
	})
	return NewSchedulingHandler(svc, logger).Routes(), store
}

type call struct {
	method string
	path   string
	body   any
	role   string
	userID string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.role != "" {
		req.Header.Set("X-Role", c.role)
		req.Header.Set("X-User-Id", c.userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestSlotsAndBookingFlow(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, call{
		method: http.MethodPost, path: "/api/v1/dentists/dent-1/working-hours",
		body: map[string]any{"day_of_week": 1, "start_time": "09:00", "end_time": "10:00"},
		role: "dentist", userID: "dent-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[ruleItem](t, rec)
	assert.True(t, rule.IsAvailable)
	assert.Equal(t, "09:00", rule.StartTime.String())

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/dentists/dent-1/slots?date=2030-01-07"})
	require.Equal(t, http.StatusOK, rec.Code)
	var slots struct {
		Date  string `json:"date"`
		Slots []struct {
			ID          string `json:"id"`
			StartTime   string `json:"start_time"`
			EndTime     string `json:"end_time"`
			IsAvailable bool   `json:"is_available"`
		} `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&slots))
	assert.Equal(t, "2030-01-07", slots.Date)
	require.Len(t, slots.Slots, 2)
	assert.Equal(t, "09:00", slots.Slots[0].StartTime)
	assert.Equal(t, "09:30", slots.Slots[0].EndTime)

	rec = do(t, h, call{
		method: http.MethodPost, path: "/api/v1/appointments",
		body: map[string]any{"dentist_id": "dent-1", "date": "2030-01-07", "start_time": "09:00", "end_time": "09:30"},
		role: "patient", userID: "pat-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[appointmentItem](t, rec)
	assert.Equal(t, "pat-1", appt.PatientID)
	assert.Equal(t, model.StatusPending, appt.Status)

	rec = do(t, h, call{
		method: http.MethodPost, path: "/api/v1/appointments",
		body: map[string]any{"patient_id": "pat-2", "dentist_id": "dent-1", "date": "2030-01-07", "start_time": "09:15", "end_time": "09:45"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ReasonSlotConflict, decode[errorResponse](t, rec).Reason)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/dentists/dent-1/slots?date=2030-01-07"})
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&slots))
	assert.False(t, slots.Slots[0].IsAvailable)
	assert.True(t, slots.Slots[1].IsAvailable)
}

func TestErrorStatusMapping(t *testing.T) {
	h, store := newTestRouter(t)
	require.NoError(t, store.UpsertService(t.Context(), model.Service{ID: "svc-1", Name: "Check-up", DurationMinutes: 30}))

	tests := []struct {
		name   string
		call   call
		status int
		reason string
	}{
		{
			name:   "bad date",
			call:   call{method: http.MethodGet, path: "/api/v1/dentists/dent-1/slots?date=07-01-2030"},
			status: http.StatusBadRequest,
			reason: model.ReasonFormat,
		},
		{
			name:   "bad time of day",
			call:   call{method: http.MethodPost, path: "/api/v1/appointments", body: map[string]any{"patient_id": "p", "dentist_id": "d", "date": "2030-01-07", "start_time": "9:00", "end_time": "09:30"}},
			status: http.StatusBadRequest,
			reason: model.ReasonFormat,
		},
		{
			name:   "inverted range",
			call:   call{method: http.MethodPost, path: "/api/v1/appointments", body: map[string]any{"patient_id": "p", "dentist_id": "d", "date": "2030-01-07", "start_time": "10:00", "end_time": "09:30"}},
			status: http.StatusUnprocessableEntity,
			reason: model.ReasonInvalidTimeRange,
		},
		{
			name:   "past booking",
			call:   call{method: http.MethodPost, path: "/api/v1/appointments", body: map[string]any{"patient_id": "p", "dentist_id": "d", "date": "2030-01-01", "start_time": "09:00", "service_id": "svc-1"}},
			status: http.StatusUnprocessableEntity,
			reason: model.ReasonPastDateTime,
		},
		{
			name:   "unknown service",
			call:   call{method: http.MethodGet, path: "/api/v1/dentists/dent-1/slots?date=2030-01-07&service_id=nope"},
			status: http.StatusNotFound,
			reason: model.ReasonNotFound,
		},
		{
			name:   "invalid day",
			call:   call{method: http.MethodPost, path: "/api/v1/dentists/dent-1/working-hours", body: map[string]any{"day_of_week": 7, "start_time": "09:00", "end_time": "10:00"}, role: "admin", userID: "a"},
			status: http.StatusUnprocessableEntity,
			reason: model.ReasonInvalidDay,
		},
		{
			name:   "other dentist",
			call:   call{method: http.MethodPost, path: "/api/v1/dentists/dent-1/working-hours", body: map[string]any{"day_of_week": 1, "start_time": "09:00", "end_time": "10:00"}, role: "dentist", userID: "dent-2"},
			status: http.StatusForbidden,
			reason: model.ReasonForbidden,
		},
		{
			name:   "unknown appointment",
			call:   call{method: http.MethodPatch, path: "/api/v1/appointments/missing/status", body: map[string]any{"status": "confirmed"}},
			status: http.StatusNotFound,
			reason: model.ReasonNotFound,
		},
		{
			name:   "unknown status",
			call:   call{method: http.MethodPatch, path: "/api/v1/appointments/missing/status", body: map[string]any{"status": "finished"}},
			status: http.StatusBadRequest,
			reason: model.ReasonFormat,
		},
		{
			name:   "list without filter",
			call:   call{method: http.MethodGet, path: "/api/v1/appointments"},
			status: http.StatusBadRequest,
			reason: model.ReasonFormat,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.call)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.reason, decode[errorResponse](t, rec).Reason)
		})
	}
}

func TestRuleOverlapAndLifecycleEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)
	admin := call{role: "admin", userID: "admin-1"}

	create := func(start, end string) *httptest.ResponseRecorder {
		return do(t, h, call{
			method: http.MethodPost, path: "/api/v1/dentists/dent-1/working-hours",
			body: map[string]any{"day_of_week": 1, "start_time": start, "end_time": end},
			role: admin.role, userID: admin.userID,
		})
	}
	require.Equal(t, http.StatusCreated, create("09:00", "12:00").Code)
	rec := create("11:00", "13:00")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ReasonRuleOverlap, decode[errorResponse](t, rec).Reason)

	rec = create("13:00", "17:00")
	require.Equal(t, http.StatusCreated, rec.Code)
	afternoon := decode[ruleItem](t, rec)

	rec = do(t, h, call{
		method: http.MethodPatch, path: "/api/v1/working-hours/" + afternoon.ID,
		body: map[string]any{"start_time": "14:00"}, role: admin.role, userID: admin.userID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "14:00", decode[ruleItem](t, rec).StartTime.String())

	rec = do(t, h, call{method: http.MethodDelete, path: "/api/v1/working-hours/" + afternoon.ID, role: admin.role, userID: admin.userID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/dentists/dent-1/working-hours"})
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		WorkingHours []ruleItem `json:"working_hours"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.WorkingHours, 1)

	rec = do(t, h, call{
		method: http.MethodPost, path: "/api/v1/appointments",
		body: map[string]any{"patient_id": "pat-1", "dentist_id": "dent-1", "date": "2030-01-07", "start_time": "09:00", "end_time": "09:30"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[appointmentItem](t, rec)

	rec = do(t, h, call{method: http.MethodPatch, path: "/api/v1/appointments/" + appt.ID + "/status", body: map[string]any{"status": "confirmed"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusConfirmed, decode[appointmentItem](t, rec).Status)

	rec = do(t, h, call{method: http.MethodPatch, path: "/api/v1/appointments/" + appt.ID + "/status", body: map[string]any{"status": "pending"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ReasonInvalidStatusTransition, decode[errorResponse](t, rec).Reason)

	rec = do(t, h, call{method: http.MethodPost, path: "/api/v1/appointments/" + appt.ID + "/cancel", body: map[string]any{"reason": "sick"}})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[appointmentItem](t, rec)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancelReason)
	assert.NotEmpty(t, cancelled.CancelledAt)

	rec = do(t, h, call{method: http.MethodPost, path: "/api/v1/appointments/" + appt.ID + "/cancel"})
	require.Equal(t, http.StatusOK, rec.Code, "cancel without a body is idempotent")

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments?dentist_id=dent-1&from=2030-01-07&to=2030-01-07"})
	require.Equal(t, http.StatusOK, rec.Code)
	appts := decode[appointmentsResponse](t, rec)
	require.Len(t, appts.Appointments, 1)
	assert.False(t, appts.Truncated)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments?patient_id=pat-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments/" + appt.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCancelled, decode[appointmentItem](t, rec).Status)
}

func TestListAppointmentsLimit(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, start := range []string{"09:00", "10:00", "11:00"} {
		rec := do(t, h, call{
			method: http.MethodPost, path: "/api/v1/appointments",
			body: map[string]any{"patient_id": "pat-1", "dentist_id": "dent-1", "date": "2030-01-07", "start_time": start, "end_time": start[:2] + ":30"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments?dentist_id=dent-1&limit=2"})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[appointmentsResponse](t, rec)
	assert.Len(t, page.Appointments, 2)
	assert.Equal(t, 2, page.Limit)
	assert.True(t, page.Truncated)

	rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments?patient_id=pat-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[appointmentsResponse](t, rec)
	assert.Len(t, page.Appointments, 3)
	assert.Equal(t, storage.DefaultListLimit, page.Limit)
	assert.False(t, page.Truncated)

	for _, q := range []string{"limit=abc", "limit=0", "limit=5000"} {
		rec = do(t, h, call{method: http.MethodGet, path: "/api/v1/appointments?dentist_id=dent-1&" + q})
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
