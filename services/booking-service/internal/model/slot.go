package model

import (
	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// TimeSlot is a derived, never stored, bookable window.
type TimeSlot struct {
	ID          string
	DentistID   string
	Date        civil.Date
	StartTime   timeofday.Clock
	EndTime     timeofday.Clock
	IsAvailable bool
}

// Interval is a half-open [Start, End) range of minutes within one day.
type Interval struct {
	Start timeofday.Clock
	End   timeofday.Clock
}

// Overlaps reports whether the two ranges share at least one minute. Touching ends do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Service is the subset of a catalog service the scheduler cares about.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
}

// Actor is the caller on whose behalf a mutation runs.
type Actor struct {
	UserID string
	Role   string
}

const (
	RoleAdmin   = "admin"
	RoleDentist = "dentist"
	RolePatient = "patient"
)

// CanManageDentist reports whether the actor may change the given dentist's working hours.
func (a Actor) CanManageDentist(dentistID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleDentist:
		return a.UserID != "" && a.UserID == dentistID
	default:
		return false
	}
}
