package model

import (
	"fmt"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// Reason codes are stable and appear in API responses.
const (
	ReasonFormat                  = "format"
	ReasonInvalidTimeRange        = "invalid_time_range"
	ReasonInvalidDay              = "invalid_day"
	ReasonRuleOverlap             = "rule_overlap"
	ReasonSlotConflict            = "slot_conflict"
	ReasonPastDateTime            = "past_date_time"
	ReasonOutsideWorkingHours     = "outside_working_hours"
	ReasonInvalidDuration         = "invalid_duration"
	ReasonInvalidStatusTransition = "invalid_status_transition"
	ReasonForbidden               = "forbidden"
	ReasonNotFound                = "not_found"
)

// ErrFormat matches malformed input: bad times of day, dates, ids or enum values.
var ErrFormat = timeofday.ErrFormat

// Rejection is a business rule refusing a request. errors.Is matches on Reason only,
// so callers compare against the Err* sentinels below.
type Rejection struct {
	Reason  string
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Message
}

func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

func Reject(reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

func Rejectf(reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidTimeRange        = &Rejection{Reason: ReasonInvalidTimeRange}
	ErrInvalidDay              = &Rejection{Reason: ReasonInvalidDay}
	ErrRuleOverlap             = &Rejection{Reason: ReasonRuleOverlap}
	ErrSlotConflict            = &Rejection{Reason: ReasonSlotConflict}
	ErrPastDateTime            = &Rejection{Reason: ReasonPastDateTime}
	ErrOutsideWorkingHours     = &Rejection{Reason: ReasonOutsideWorkingHours}
	ErrInvalidDuration         = &Rejection{Reason: ReasonInvalidDuration}
	ErrInvalidStatusTransition = &Rejection{Reason: ReasonInvalidStatusTransition}
	ErrForbidden               = &Rejection{Reason: ReasonForbidden}
	ErrNotFound                = &Rejection{Reason: ReasonNotFound}
)
