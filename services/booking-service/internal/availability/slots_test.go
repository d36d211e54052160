package availability

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// 2026-03-02 is a Monday.
var monday = civil.Date{Year: 2026, Month: 3, Day: 2}

func rule(day int, start, end string, enabled bool) model.WorkingHourRule {
	return model.WorkingHourRule{
		ID:          "r-" + start,
		DentistID:   "dentist-1",
		DayOfWeek:   day,
		StartTime:   timeofday.MustParse(start),
		EndTime:     timeofday.MustParse(end),
		IsAvailable: enabled,
	}
}

func appt(start, end string, status model.Status) model.Appointment {
	return model.Appointment{
		ID:        "a-" + start,
		DentistID: "dentist-1",
		Date:      monday,
		StartTime: timeofday.MustParse(start),
		EndTime:   timeofday.MustParse(end),
		Status:    status,
	}
}

func TestWeekday(t *testing.T) {
	if got := Weekday(monday); got != 1 {
		t.Fatalf("expected Monday (1), got %d", got)
	}
	if got := Weekday(civil.Date{Year: 2026, Month: 3, Day: 1}); got != 0 {
		t.Fatalf("expected Sunday (0), got %d", got)
	}
}

func TestGenerate_Basic(t *testing.T) {
	slots := Generate("dentist-1", monday, []model.WorkingHourRule{rule(1, "09:00", "10:00", true)}, nil, 30)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].StartTime.String() != "09:00" || slots[0].EndTime.String() != "09:30" {
		t.Fatalf("unexpected first slot %s-%s", slots[0].StartTime, slots[0].EndTime)
	}
	if slots[1].StartTime.String() != "09:30" || slots[1].EndTime.String() != "10:00" {
		t.Fatalf("unexpected second slot %s-%s", slots[1].StartTime, slots[1].EndTime)
	}
	for _, s := range slots {
		if !s.IsAvailable {
			t.Fatalf("slot %s should be available", s.StartTime)
		}
	}
}

func TestGenerate_BookedSlotUnavailable(t *testing.T) {
	slots := Generate("dentist-1", monday,
		[]model.WorkingHourRule{rule(1, "09:00", "10:00", true)},
		[]model.Appointment{appt("09:00", "09:30", model.StatusConfirmed)},
		30)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].IsAvailable {
		t.Fatalf("09:00 should be booked")
	}
	if !slots[1].IsAvailable {
		t.Fatalf("09:30 should be free")
	}
	if got := Available(slots); len(got) != 1 || got[0].StartTime.String() != "09:30" {
		t.Fatalf("unexpected available slots %+v", got)
	}
}

func TestGenerate_PartialOverlapBlocksBothSlots(t *testing.T) {
	slots := Generate("dentist-1", monday,
		[]model.WorkingHourRule{rule(1, "09:00", "10:00", true)},
		[]model.Appointment{appt("09:15", "09:45", model.StatusPending)},
		30)
	for _, s := range slots {
		if s.IsAvailable {
			t.Fatalf("slot %s overlaps the appointment and should be unavailable", s.StartTime)
		}
	}
}

func TestGenerate_CancelledAppointmentIgnored(t *testing.T) {
	slots := Generate("dentist-1", monday,
		[]model.WorkingHourRule{rule(1, "09:00", "10:00", true)},
		[]model.Appointment{appt("09:00", "09:30", model.StatusCancelled)},
		30)
	for _, s := range slots {
		if !s.IsAvailable {
			t.Fatalf("cancelled appointment should not block %s", s.StartTime)
		}
	}
}

func TestGenerate_NoPartialSlots(t *testing.T) {
	slots := Generate("dentist-1", monday, []model.WorkingHourRule{rule(1, "09:00", "10:10", true)}, nil, 30)
	if len(slots) != 2 {
		t.Fatalf("expected 2 whole slots, got %d", len(slots))
	}
	r := rule(1, "09:00", "10:10", true)
	for _, s := range slots {
		if s.EndTime > r.EndTime || s.EndTime-s.StartTime != 30 {
			t.Fatalf("slot %s-%s is partial or past the rule end", s.StartTime, s.EndTime)
		}
	}

	if got := Generate("dentist-1", monday, []model.WorkingHourRule{rule(1, "09:00", "09:20", true)}, nil, 30); len(got) != 0 {
		t.Fatalf("a window shorter than the duration yields no slots, got %d", len(got))
	}
}

func TestGenerate_DisabledRuleYieldsNothing(t *testing.T) {
	if got := Generate("dentist-1", monday, []model.WorkingHourRule{rule(1, "09:00", "12:00", false)}, nil, 30); len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestGenerate_OtherWeekdayIgnored(t *testing.T) {
	if got := Generate("dentist-1", monday, []model.WorkingHourRule{rule(2, "09:00", "12:00", true)}, nil, 30); len(got) != 0 {
		t.Fatalf("expected no slots for a Tuesday rule, got %d", len(got))
	}
}

func TestGenerate_RuleOrderThenTimeOrder(t *testing.T) {
	rules := []model.WorkingHourRule{
		rule(1, "14:00", "15:00", true),
		rule(1, "09:00", "10:00", true),
	}
	slots := Generate("dentist-1", monday, rules, nil, 30)
	var got []string
	for _, s := range slots {
		got = append(got, s.StartTime.String())
	}
	want := []string{"14:00", "14:30", "09:00", "09:30"}
	if len(got) != len(want) {
		t.Fatalf("unexpected slots %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestGenerate_DeterministicIDs(t *testing.T) {
	rules := []model.WorkingHourRule{rule(1, "09:00", "10:00", true)}
	a := Generate("dentist-1", monday, rules, nil, 30)
	b := Generate("dentist-1", monday, rules, nil, 30)
	if a[0].ID != b[0].ID || a[0].ID == a[1].ID {
		t.Fatalf("ids should be stable per slot and distinct across slots")
	}
	other := Generate("dentist-2", monday, []model.WorkingHourRule{{DentistID: "dentist-2", DayOfWeek: 1, StartTime: 540, EndTime: 600, IsAvailable: true}}, nil, 30)
	if other[0].ID == a[0].ID {
		t.Fatalf("different dentists must not share slot ids")
	}
}

func TestGenerate_NonPositiveDuration(t *testing.T) {
	if got := Generate("dentist-1", monday, []model.WorkingHourRule{rule(1, "09:00", "10:00", true)}, nil, 0); got != nil {
		t.Fatalf("expected nil for zero duration")
	}
}
