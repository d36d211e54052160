package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"
	AggregateDentist     = "dentist"

	TypeAppointmentBooked        = "booking.appointment.booked.v1"
	TypeAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	TypeAppointmentCancelled     = "booking.appointment.cancelled.v1"
	TypeWorkingHoursChanged      = "schedule.working_hours.changed.v1"
)

type appointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DentistID     string `json:"dentist_id"`
	ServiceID     string `json:"service_id,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PreviousState string `json:"previous_status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

func newAppointmentPayload(a model.Appointment, at time.Time) appointmentPayload {
	return appointmentPayload{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DentistID:     a.DentistID,
		ServiceID:     a.ServiceID,
		Date:          a.Date.String(),
		StartTime:     a.StartTime.String(),
		EndTime:       a.EndTime.String(),
		Status:        string(a.Status),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

func AppointmentBooked(a model.Appointment, at time.Time) (Event, error) {
	return appointmentEvent(TypeAppointmentBooked, newAppointmentPayload(a, at))
}

// AppointmentStatusChanged is emitted for every lifecycle move. Cancellations also get
// AppointmentCancelled so reminder consumers can subscribe to that topic alone.
func AppointmentStatusChanged(a model.Appointment, previous model.Status, at time.Time) (Event, error) {
	p := newAppointmentPayload(a, at)
	p.PreviousState = string(previous)
	return appointmentEvent(TypeAppointmentStatusChanged, p)
}

func AppointmentCancelled(a model.Appointment, at time.Time) (Event, error) {
	p := newAppointmentPayload(a, at)
	p.Reason = a.CancelReason
	return appointmentEvent(TypeAppointmentCancelled, p)
}

func appointmentEvent(eventType string, p appointmentPayload) (Event, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}

// WorkingHoursChanged tells downstream caches that a dentist's weekly template moved.
// Action is one of created, updated, deleted.
func WorkingHoursChanged(r model.WorkingHourRule, action string, at time.Time) (Event, error) {
	b, err := json.Marshal(struct {
		RuleID      string `json:"rule_id"`
		DentistID   string `json:"dentist_id"`
		DayOfWeek   int    `json:"day_of_week"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		IsAvailable bool   `json:"is_available"`
		Action      string `json:"action"`
		OccurredAt  string `json:"occurred_at"`
	}{
		RuleID:      r.ID,
		DentistID:   r.DentistID,
		DayOfWeek:   r.DayOfWeek,
		StartTime:   r.StartTime.String(),
		EndTime:     r.EndTime.String(),
		IsAvailable: r.IsAvailable,
		Action:      action,
		OccurredAt:  at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateDentist,
		AggregateID:   r.DentistID,
		EventType:     TypeWorkingHoursChanged,
		Payload:       b,
	}, nil
}
