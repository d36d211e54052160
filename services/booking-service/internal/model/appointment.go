package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

type Appointment struct {
	ID           string
	PatientID    string
	DentistID    string
	ServiceID    string
	Date         civil.Date
	StartTime    timeofday.Clock
	EndTime      timeofday.Clock
	Status       Status
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Interval returns the appointment's [start, end) in minutes.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Blocks reports whether the appointment takes part in conflict checks.
func (a Appointment) Blocks() bool {
	return a.Status != StatusCancelled
}

// StartsAt is the wall-clock start in loc. On a DST gap the result is normalized the way
// time.Date does it.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	m := a.StartTime.Minutes()
	return time.Date(a.Date.Year, a.Date.Month, a.Date.Day, m/60, m%60, 0, 0, loc)
}
