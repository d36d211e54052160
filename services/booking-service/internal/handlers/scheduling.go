package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

type SchedulingHandler struct {
	svc    *scheduling.Service
	logger *slog.Logger
}

func NewSchedulingHandler(svc *scheduling.Service, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{svc: svc, logger: logger}
}

// Routes returns the /api/v1 router.
func (h *SchedulingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dentists/{dentistID}/slots", h.Slots)
		r.Get("/dentists/{dentistID}/working-hours", h.ListWorkingHours)
		r.Post("/dentists/{dentistID}/working-hours", h.CreateWorkingHours)
		r.Patch("/working-hours/{ruleID}", h.UpdateWorkingHours)
		r.Delete("/working-hours/{ruleID}", h.DeleteWorkingHours)

		r.Post("/appointments", h.CreateAppointment)
		r.Get("/appointments", h.ListAppointments)
		r.Get("/appointments/{appointmentID}", h.GetAppointment)
		r.Patch("/appointments/{appointmentID}/status", h.UpdateStatus)
		r.Post("/appointments/{appointmentID}/cancel", h.Cancel)
	})
	return r
}

type slotItem struct {
	ID          string          `json:"id"`
	StartTime   timeofday.Clock `json:"start_time"`
	EndTime     timeofday.Clock `json:"end_time"`
	IsAvailable bool            `json:"is_available"`
}

type slotsResponse struct {
	DentistID string     `json:"dentist_id"`
	Date      civil.Date `json:"date"`
	ServiceID string     `json:"service_id,omitempty"`
	Slots     []slotItem `json:"slots"`
}

type ruleItem struct {
	ID          string          `json:"id"`
	DentistID   string          `json:"dentist_id"`
	DayOfWeek   int             `json:"day_of_week"`
	StartTime   timeofday.Clock `json:"start_time"`
	EndTime     timeofday.Clock `json:"end_time"`
	IsAvailable bool            `json:"is_available"`
}

type appointmentItem struct {
	ID           string          `json:"id"`
	PatientID    string          `json:"patient_id"`
	DentistID    string          `json:"dentist_id"`
	ServiceID    string          `json:"service_id,omitempty"`
	Date         civil.Date      `json:"date"`
	StartTime    timeofday.Clock `json:"start_time"`
	EndTime      timeofday.Clock `json:"end_time"`
	Status       model.Status    `json:"status"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CancelledAt  string          `json:"cancelled_at,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

func toRuleItem(r model.WorkingHourRule) ruleItem {
	return ruleItem{
		ID:          r.ID,
		DentistID:   r.DentistID,
		DayOfWeek:   r.DayOfWeek,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		IsAvailable: r.IsAvailable,
	}
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DentistID:    a.DentistID,
		ServiceID:    a.ServiceID,
		Date:         a.Date,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       a.Status,
		CancelReason: a.CancelReason,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	dentistID := strings.TrimSpace(chi.URLParam(r, "dentistID"))
	date, err := civil.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeBadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))

	slots, err := h.svc.GetAvailableSlots(r.Context(), dentistID, date, serviceID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := slotsResponse{DentistID: dentistID, Date: date, ServiceID: serviceID, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime, IsAvailable: s.IsAvailable})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	dentistID := strings.TrimSpace(chi.URLParam(r, "dentistID"))
	rules, err := h.svc.ListWorkingHours(r.Context(), dentistID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]ruleItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleItem(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"working_hours": items})
}

type createRuleRequest struct {
	DayOfWeek   *int   `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable *bool  `json:"is_available"`
}

func (h *SchedulingHandler) CreateWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.DayOfWeek == nil {
		writeBadRequest(w, "day_of_week is required")
		return
	}
	start, err := timeofday.Parse(strings.TrimSpace(req.StartTime))
	if err != nil {
		writeBadRequest(w, "invalid start_time: "+err.Error())
		return
	}
	end, err := timeofday.Parse(strings.TrimSpace(req.EndTime))
	if err != nil {
		writeBadRequest(w, "invalid end_time: "+err.Error())
		return
	}
	enabled := true
	if req.IsAvailable != nil {
		enabled = *req.IsAvailable
	}

	rule, err := h.svc.CreateAvailabilityRule(r.Context(), actorFromRequest(r), model.WorkingHourRule{
		DentistID:   strings.TrimSpace(chi.URLParam(r, "dentistID")),
		DayOfWeek:   *req.DayOfWeek,
		StartTime:   start,
		EndTime:     end,
		IsAvailable: enabled,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleItem(rule))
}

type updateRuleRequest struct {
	DayOfWeek   *int    `json:"day_of_week"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	IsAvailable *bool   `json:"is_available"`
}

func (h *SchedulingHandler) UpdateWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	changes := model.RuleChanges{DayOfWeek: req.DayOfWeek, IsAvailable: req.IsAvailable}
	if req.StartTime != nil {
		start, err := timeofday.Parse(strings.TrimSpace(*req.StartTime))
		if err != nil {
			writeBadRequest(w, "invalid start_time: "+err.Error())
			return
		}
		changes.StartTime = &start
	}
	if req.EndTime != nil {
		end, err := timeofday.Parse(strings.TrimSpace(*req.EndTime))
		if err != nil {
			writeBadRequest(w, "invalid end_time: "+err.Error())
			return
		}
		changes.EndTime = &end
	}

	rule, err := h.svc.UpdateAvailabilityRule(r.Context(), actorFromRequest(r), chi.URLParam(r, "ruleID"), changes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleItem(rule))
}

func (h *SchedulingHandler) DeleteWorkingHours(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAvailabilityRule(r.Context(), actorFromRequest(r), chi.URLParam(r, "ruleID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DentistID string `json:"dentist_id"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *SchedulingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeBadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	start, err := timeofday.Parse(strings.TrimSpace(req.StartTime))
	if err != nil {
		writeBadRequest(w, "invalid start_time: "+err.Error())
		return
	}
	in := scheduling.NewAppointment{
		PatientID: strings.TrimSpace(req.PatientID),
		DentistID: strings.TrimSpace(req.DentistID),
		ServiceID: strings.TrimSpace(req.ServiceID),
		Date:      date,
		StartTime: start,
	}
	if raw := strings.TrimSpace(req.EndTime); raw != "" {
		end, err := timeofday.Parse(raw)
		if err != nil {
			writeBadRequest(w, "invalid end_time: "+err.Error())
			return
		}
		in.EndTime = &end
	}
	// Patients book for themselves unless the body names someone else.
	if actor := actorFromRequest(r); in.PatientID == "" && actor.Role == model.RolePatient {
		in.PatientID = actor.UserID
	}

	appt, err := h.svc.CreateAppointment(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

type appointmentsResponse struct {
	Appointments []appointmentItem `json:"appointments"`
	Limit        int               `json:"limit"`
	Truncated    bool              `json:"truncated"`
}

func (h *SchedulingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dentistID := strings.TrimSpace(q.Get("dentist_id"))
	patientID := strings.TrimSpace(q.Get("patient_id"))

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		page scheduling.AppointmentPage
		err  error
	)
	switch {
	case dentistID != "":
		from, ok := optionalDate(w, q.Get("from"), "from")
		if !ok {
			return
		}
		to, ok := optionalDate(w, q.Get("to"), "to")
		if !ok {
			return
		}
		page, err = h.svc.ListAppointments(r.Context(), dentistID, from, to, limit)
	case patientID != "":
		page, err = h.svc.ListPatientAppointments(r.Context(), patientID, limit)
	default:
		writeBadRequest(w, "dentist_id or patient_id is required")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := appointmentsResponse{
		Appointments: make([]appointmentItem, 0, len(page.Appointments)),
		Limit:        page.Limit,
		Truncated:    page.Truncated,
	}
	for _, a := range page.Appointments {
		resp.Appointments = append(resp.Appointments, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func optionalDate(w http.ResponseWriter, raw, field string) (*civil.Date, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		writeBadRequest(w, field+" must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

func (h *SchedulingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.GetAppointment(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *SchedulingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	status, err := model.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	appt, err := h.svc.UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "appointmentID"), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// An empty body is a cancel without a reason.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid json body")
		return
	}
	appt, err := h.svc.CancelAppointment(r.Context(), chi.URLParam(r, "appointmentID"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}
