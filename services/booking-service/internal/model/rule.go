package model

import (
	"time"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// WorkingHourRule is one recurring weekly availability window for a dentist.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type WorkingHourRule struct {
	ID          string
	DentistID   string
	DayOfWeek   int
	StartTime   timeofday.Clock
	EndTime     timeofday.Clock
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r WorkingHourRule) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// Validate checks the structural constraints that do not need the store.
func (r WorkingHourRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return Rejectf(ReasonInvalidDay, "day_of_week must be between 0 and 6, got %d", r.DayOfWeek)
	}
	if r.StartTime >= r.EndTime {
		return Rejectf(ReasonInvalidTimeRange, "start %s must be before end %s", r.StartTime, r.EndTime)
	}
	return nil
}

// RuleChanges is a partial update; nil fields keep their current value.
type RuleChanges struct {
	DayOfWeek   *int
	StartTime   *timeofday.Clock
	EndTime     *timeofday.Clock
	IsAvailable *bool
}

// Apply returns r with the non-nil changes applied. Identity fields are never touched.
func (c RuleChanges) Apply(r WorkingHourRule) WorkingHourRule {
	if c.DayOfWeek != nil {
		r.DayOfWeek = *c.DayOfWeek
	}
	if c.StartTime != nil {
		r.StartTime = *c.StartTime
	}
	if c.EndTime != nil {
		r.EndTime = *c.EndTime
	}
	if c.IsAvailable != nil {
		r.IsAvailable = *c.IsAvailable
	}
	return r
}
