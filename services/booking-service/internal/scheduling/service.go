// Package scheduling is the application facade of the booking service. It composes slot
// generation, booking validation, working-hour rules and service durations over one Store,
// and is the only package the transport layers talk to.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/rules"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("booking-service/scheduling")

// DurationSource resolves a service id to its length in minutes.
type DurationSource interface {
	Duration(ctx context.Context, serviceID string) (int, error)
}

type Config struct {
	// Location is the clinic's timezone. Dates and times of day are read in it.
	Location           *time.Location
	DefaultSlotMinutes int
	// EnforceWorkingHours rejects bookings that do not fit inside an enabled rule.
	EnforceWorkingHours bool
	Now                 func() time.Time
	NewID               func() string
}

type Service struct {
	store       storage.Store
	durations   DurationSource
	validator   *booking.Validator
	rules       *rules.Manager
	metrics     *metrics.Metrics
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
	newID       func() string
	defaultSlot int
}

// NewService wires the facade. durations may be nil, in which case service durations are
// read from the store without caching. m may be nil.
func NewService(store storage.Store, durations DurationSource, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultSlotMinutes <= 0 {
		cfg.DefaultSlotMinutes = availability.DefaultSlotMinutes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	if durations == nil {
		durations = catalog.NewDurations(store, logger, catalog.Options{})
	}

	opts := []booking.Option{booking.WithClock(cfg.Now)}
	if cfg.EnforceWorkingHours {
		opts = append(opts, booking.WithWorkingHours(store))
	}

	return &Service{
		store:       store,
		durations:   durations,
		validator:   booking.NewValidator(store, cfg.Location, opts...),
		rules:       rules.NewManager(store, cfg.Now),
		metrics:     m,
		logger:      logger,
		loc:         cfg.Location,
		now:         cfg.Now,
		newID:       cfg.NewID,
		defaultSlot: cfg.DefaultSlotMinutes,
	}
}

// GetAvailableSlots returns every candidate slot of the dentist on date, booked ones marked
// unavailable. With a serviceID the slot length is that service's duration. Slots already in
// the past are included; booking them is refused by CreateAppointment.
func (s *Service) GetAvailableSlots(ctx context.Context, dentistID string, date civil.Date, serviceID string) (slots []model.TimeSlot, err error) {
	ctx, done := s.begin(ctx, "GetAvailableSlots",
		attribute.String("dentist_id", dentistID), attribute.String("date", date.String()))
	defer func() { done(err) }()

	if dentistID == "" {
		return nil, fmt.Errorf("%w: dentist_id is required", model.ErrFormat)
	}
	if !date.IsValid() {
		return nil, fmt.Errorf("%w: invalid date %s", model.ErrFormat, date)
	}

	duration := s.defaultSlot
	if serviceID != "" {
		if duration, err = s.durations.Duration(ctx, serviceID); err != nil {
			return nil, err
		}
	}

	var (
		dayRules []model.WorkingHourRule
		appts    []model.Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dayRules, err = s.store.FindWorkingHourRules(gctx, dentistID, availability.Weekday(date))
		if err != nil {
			return fmt.Errorf("find working hour rules: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		appts, err = s.store.FindAppointments(gctx, dentistID, date)
		if err != nil {
			return fmt.Errorf("find appointments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slots = availability.Generate(dentistID, date, dayRules, appts, duration)
	s.metrics.ObserveSlots(len(slots), len(availability.Available(slots)))
	return slots, nil
}

// NewAppointment is a booking request. EndTime may be nil when ServiceID is set; the end is
// then derived from the service's duration.
type NewAppointment struct {
	PatientID string
	DentistID string
	ServiceID string
	Date      civil.Date
	StartTime timeofday.Clock
	EndTime   *timeofday.Clock
}

func (s *Service) CreateAppointment(ctx context.Context, req NewAppointment) (appt model.Appointment, err error) {
	ctx, done := s.begin(ctx, "CreateAppointment",
		attribute.String("dentist_id", req.DentistID), attribute.String("date", req.Date.String()))
	defer func() { done(err) }()

	switch {
	case req.PatientID == "":
		return model.Appointment{}, fmt.Errorf("%w: patient_id is required", model.ErrFormat)
	case req.DentistID == "":
		return model.Appointment{}, fmt.Errorf("%w: dentist_id is required", model.ErrFormat)
	case !req.Date.IsValid():
		return model.Appointment{}, fmt.Errorf("%w: invalid date %s", model.ErrFormat, req.Date)
	}

	end, err := s.endTime(ctx, req)
	if err != nil {
		return model.Appointment{}, err
	}

	appt = model.Appointment{
		ID:        s.newID(),
		PatientID: req.PatientID,
		DentistID: req.DentistID,
		ServiceID: req.ServiceID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   end,
		Status:    model.StatusPending,
	}
	if err := s.validator.Validate(ctx, appt); err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentBooked(appt, s.now())
	if err != nil {
		return model.Appointment{}, fmt.Errorf("build booked event: %w", err)
	}
	saved, err := s.store.InsertAppointment(ctx, appt, evt)
	if err != nil {
		if storage.IsConflict(err) {
			// Lost the race against a concurrent booking of the same time.
			return model.Appointment{}, model.Rejectf(model.ReasonSlotConflict,
				"%s-%s on %s was booked concurrently", appt.StartTime, appt.EndTime, appt.Date)
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return saved, nil
}

func (s *Service) endTime(ctx context.Context, req NewAppointment) (timeofday.Clock, error) {
	if req.EndTime != nil {
		return *req.EndTime, nil
	}
	if req.ServiceID == "" {
		return 0, fmt.Errorf("%w: end_time or service_id is required", model.ErrFormat)
	}
	mins, err := s.durations.Duration(ctx, req.ServiceID)
	if err != nil {
		return 0, err
	}
	end, err := req.StartTime.Add(mins)
	if err != nil {
		return 0, model.Rejectf(model.ReasonInvalidTimeRange,
			"%d minute service starting at %s ends after 23:59", mins, req.StartTime)
	}
	return end, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (appt model.Appointment, err error) {
	ctx, done := s.begin(ctx, "GetAppointment", attribute.String("appointment_id", id))
	defer func() { done(err) }()

	appt, err = s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, appointmentNotFound(err, id)
	}
	return appt, nil
}

// UpdateAppointmentStatus moves an appointment forward in its lifecycle or cancels it.
// Setting the status it already has is a no-op.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id string, status model.Status) (appt model.Appointment, err error) {
	ctx, done := s.begin(ctx, "UpdateAppointmentStatus",
		attribute.String("appointment_id", id), attribute.String("status", string(status)))
	defer func() { done(err) }()

	return s.changeStatus(ctx, id, status, "")
}

// CancelAppointment cancels an appointment, freeing its time. Cancelling twice succeeds and
// keeps the original reason and timestamp.
func (s *Service) CancelAppointment(ctx context.Context, id, reason string) (appt model.Appointment, err error) {
	ctx, done := s.begin(ctx, "CancelAppointment", attribute.String("appointment_id", id))
	defer func() { done(err) }()

	return s.changeStatus(ctx, id, model.StatusCancelled, reason)
}

func (s *Service) changeStatus(ctx context.Context, id string, next model.Status, reason string) (model.Appointment, error) {
	if _, err := model.ParseStatus(string(next)); err != nil {
		return model.Appointment{}, err
	}

	appt, err := s.store.UpdateAppointment(ctx, id, func(current model.Appointment) (model.Appointment, []outbox.Event, error) {
		if current.Status == next {
			return current, nil, nil
		}
		if !current.Status.CanTransitionTo(next) {
			return model.Appointment{}, nil, model.Rejectf(model.ReasonInvalidStatusTransition,
				"appointment %s cannot move from %s to %s", id, current.Status, next)
		}

		now := s.now()
		updated := current
		updated.Status = next
		if next == model.StatusCancelled {
			at := now.UTC()
			updated.CancelledAt = &at
			updated.CancelReason = reason
		}

		changed, err := outbox.AppointmentStatusChanged(updated, current.Status, now)
		if err != nil {
			return model.Appointment{}, nil, err
		}
		events := []outbox.Event{changed}
		if next == model.StatusCancelled {
			cancelled, err := outbox.AppointmentCancelled(updated, now)
			if err != nil {
				return model.Appointment{}, nil, err
			}
			events = append(events, cancelled)
		}
		return updated, events, nil
	})
	if err != nil {
		return model.Appointment{}, appointmentNotFound(err, id)
	}
	return appt, nil
}

// AppointmentPage is one ordered page of a schedule view. Truncated is set when more
// appointments match than Limit.
type AppointmentPage struct {
	Appointments []model.Appointment
	Limit        int
	Truncated    bool
}

// ListAppointments returns a dentist's appointments between from and to inclusive. A zero
// limit means storage.DefaultListLimit.
func (s *Service) ListAppointments(ctx context.Context, dentistID string, from, to *civil.Date, limit int) (page AppointmentPage, err error) {
	ctx, done := s.begin(ctx, "ListAppointments", attribute.String("dentist_id", dentistID))
	defer func() { done(err) }()

	if dentistID == "" {
		return AppointmentPage{}, fmt.Errorf("%w: dentist_id is required", model.ErrFormat)
	}
	if from != nil && to != nil && to.Before(*from) {
		return AppointmentPage{}, model.Rejectf(model.ReasonInvalidTimeRange, "to %s is before from %s", to, from)
	}
	return s.listPage(ctx, storage.AppointmentFilter{DentistID: dentistID, From: from, To: to}, limit)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID string, limit int) (page AppointmentPage, err error) {
	ctx, done := s.begin(ctx, "ListPatientAppointments")
	defer func() { done(err) }()

	if patientID == "" {
		return AppointmentPage{}, fmt.Errorf("%w: patient_id is required", model.ErrFormat)
	}
	return s.listPage(ctx, storage.AppointmentFilter{PatientID: patientID}, limit)
}

// listPage asks the store for one row past limit to learn whether the view was cut short.
func (s *Service) listPage(ctx context.Context, f storage.AppointmentFilter, limit int) (AppointmentPage, error) {
	switch {
	case limit == 0:
		limit = storage.DefaultListLimit
	case limit < 0 || limit > storage.MaxListLimit:
		return AppointmentPage{}, fmt.Errorf("%w: limit must be between 1 and %d", model.ErrFormat, storage.MaxListLimit)
	}
	f.Limit = limit + 1
	appts, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return AppointmentPage{}, fmt.Errorf("list appointments: %w", err)
	}
	page := AppointmentPage{Appointments: appts, Limit: limit}
	if len(appts) > limit {
		page.Appointments = appts[:limit]
		page.Truncated = true
	}
	return page, nil
}

func (s *Service) ListWorkingHours(ctx context.Context, dentistID string) (list []model.WorkingHourRule, err error) {
	ctx, done := s.begin(ctx, "ListWorkingHours", attribute.String("dentist_id", dentistID))
	defer func() { done(err) }()

	return s.rules.List(ctx, dentistID)
}

func (s *Service) CreateAvailabilityRule(ctx context.Context, actor model.Actor, r model.WorkingHourRule) (rule model.WorkingHourRule, err error) {
	ctx, done := s.begin(ctx, "CreateAvailabilityRule", attribute.String("dentist_id", r.DentistID))
	defer func() { done(err) }()

	return s.rules.Create(ctx, actor, r)
}

func (s *Service) UpdateAvailabilityRule(ctx context.Context, actor model.Actor, id string, changes model.RuleChanges) (rule model.WorkingHourRule, err error) {
	ctx, done := s.begin(ctx, "UpdateAvailabilityRule", attribute.String("rule_id", id))
	defer func() { done(err) }()

	return s.rules.Update(ctx, actor, id, changes)
}

func (s *Service) DeleteAvailabilityRule(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, done := s.begin(ctx, "DeleteAvailabilityRule", attribute.String("rule_id", id))
	defer func() { done(err) }()

	return s.rules.Delete(ctx, actor, id)
}

// begin opens a span for op and returns the function that closes it, recording the outcome
// in metrics and the log.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
	started := time.Now()

	return ctx, func(err error) {
		defer span.End()
		elapsed := time.Since(started).Seconds()

		var rej *model.Rejection
		switch {
		case err == nil:
			s.metrics.ObserveOperation(op, "ok", elapsed)
		case errors.As(err, &rej):
			span.SetAttributes(attribute.String("rejection.reason", rej.Reason))
			s.metrics.ObserveOperation(op, "rejected", elapsed)
			s.metrics.ObserveRejection(op, rej.Reason)
			s.logger.InfoContext(ctx, "request rejected", "op", op, "reason", rej.Reason, "detail", rej.Message)
		case errors.Is(err, model.ErrFormat):
			s.metrics.ObserveOperation(op, "rejected", elapsed)
			s.metrics.ObserveRejection(op, model.ReasonFormat)
			s.logger.InfoContext(ctx, "request rejected", "op", op, "reason", model.ReasonFormat, "detail", err.Error())
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ObserveOperation(op, "error", elapsed)
			s.logger.ErrorContext(ctx, "scheduling operation failed", "op", op, "err", err)
		}
	}
}

func appointmentNotFound(err error, id string) error {
	if storage.IsNotFound(err) {
		return model.Rejectf(model.ReasonNotFound, "appointment %s not found", id)
	}
	var rej *model.Rejection
	if errors.As(err, &rej) {
		return err
	}
	return fmt.Errorf("appointment %s: %w", id, err)
}
