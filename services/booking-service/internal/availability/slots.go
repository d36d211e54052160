package availability

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// DefaultSlotMinutes sizes slots when no service is given.
const DefaultSlotMinutes = 30

// slotNamespace scopes slot ids so the same (date, start, dentist) always yields the same id.
var slotNamespace = uuid.MustParse("8b0f3a52-6f6c-4d8e-9a4e-3c1d2b7e5f10")

// Weekday returns the day-of-week index (0 = Sunday) of a calendar date.
func Weekday(d civil.Date) int {
	return int(d.In(time.UTC).Weekday())
}

// SlotID derives the deterministic identifier of a slot.
func SlotID(dentistID string, date civil.Date, start timeofday.Clock) string {
	return uuid.NewSHA1(slotNamespace, []byte(date.String()+"|"+start.String()+"|"+dentistID)).String()
}

// Generate lays fixed-size slots over each enabled rule matching date's weekday.
//
// Rules are walked independently in the order given, so the output is rule order, then time
// order; overlapping rules produce overlapping slots. A slot that would run past its rule's end
// is dropped. A slot is unavailable when it overlaps any non-cancelled appointment.
// Appointments for other dentists or dates are ignored.
func Generate(dentistID string, date civil.Date, rules []model.WorkingHourRule, appts []model.Appointment, durationMinutes int) []model.TimeSlot {
	if durationMinutes <= 0 {
		return nil
	}
	weekday := Weekday(date)

	busy := make([]model.Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Blocks() || a.DentistID != dentistID || a.Date != date {
			continue
		}
		busy = append(busy, a.Interval())
	}

	var slots []model.TimeSlot
	for _, r := range rules {
		if !r.IsAvailable || r.DentistID != dentistID || r.DayOfWeek != weekday || r.StartTime >= r.EndTime {
			continue
		}
		step := timeofday.Clock(durationMinutes)
		for cursor := r.StartTime; cursor+step <= r.EndTime; cursor += step {
			candidate := model.Interval{Start: cursor, End: cursor + step}
			slots = append(slots, model.TimeSlot{
				ID:          SlotID(dentistID, date, cursor),
				DentistID:   dentistID,
				Date:        date,
				StartTime:   candidate.Start,
				EndTime:     candidate.End,
				IsAvailable: !overlapsAny(candidate, busy),
			})
		}
	}
	return slots
}

// Available filters slots down to the bookable ones.
func Available(slots []model.TimeSlot) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.IsAvailable {
			out = append(out, s)
		}
	}
	return out
}

func overlapsAny(c model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}
