// Package booking decides whether a proposed appointment may be stored.
package booking

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
)

type AppointmentFinder interface {
	FindAppointments(ctx context.Context, dentistID string, date civil.Date) ([]model.Appointment, error)
}

type RuleFinder interface {
	FindWorkingHourRules(ctx context.Context, dentistID string, dayOfWeek int) ([]model.WorkingHourRule, error)
}

type Validator struct {
	appts AppointmentFinder
	rules RuleFinder
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Validator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithWorkingHours makes Validate require the booking to fit inside one enabled rule.
func WithWorkingHours(rules RuleFinder) Option {
	return func(v *Validator) { v.rules = rules }
}

// NewValidator interprets appointment dates and times in loc (the clinic's timezone).
func NewValidator(appts AppointmentFinder, loc *time.Location, opts ...Option) *Validator {
	if loc == nil {
		loc = time.Local
	}
	v := &Validator{appts: appts, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil when the appointment can be booked, a *model.Rejection when a rule
// refuses it, or a wrapped store error. Checks run cheapest first.
func (v *Validator) Validate(ctx context.Context, proposed model.Appointment) error {
	if proposed.StartTime >= proposed.EndTime {
		return model.Rejectf(model.ReasonInvalidTimeRange, "start %s must be before end %s", proposed.StartTime, proposed.EndTime)
	}

	if start := proposed.StartsAt(v.loc); !start.After(v.now()) {
		return model.Rejectf(model.ReasonPastDateTime, "%s %s is not in the future", proposed.Date, proposed.StartTime)
	}

	if v.rules != nil {
		if err := v.withinWorkingHours(ctx, proposed); err != nil {
			return err
		}
	}

	existing, err := v.appts.FindAppointments(ctx, proposed.DentistID, proposed.Date)
	if err != nil {
		return fmt.Errorf("find appointments: %w", err)
	}
	for _, a := range existing {
		if a.Blocks() && a.ID != proposed.ID && a.Interval().Overlaps(proposed.Interval()) {
			return model.Rejectf(model.ReasonSlotConflict, "%s-%s overlaps an existing appointment at %s-%s",
				proposed.StartTime, proposed.EndTime, a.StartTime, a.EndTime)
		}
	}
	return nil
}

func (v *Validator) withinWorkingHours(ctx context.Context, proposed model.Appointment) error {
	rules, err := v.rules.FindWorkingHourRules(ctx, proposed.DentistID, availability.Weekday(proposed.Date))
	if err != nil {
		return fmt.Errorf("find working hours: %w", err)
	}
	for _, r := range rules {
		if r.IsAvailable && r.Interval().Contains(proposed.Interval()) {
			return nil
		}
	}
	return model.Rejectf(model.ReasonOutsideWorkingHours, "%s-%s on %s is outside the dentist's working hours",
		proposed.StartTime, proposed.EndTime, proposed.Date)
}
