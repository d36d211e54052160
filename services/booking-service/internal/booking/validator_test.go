package booking

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

type fakeStore struct {
	appts []model.Appointment
	rules []model.WorkingHourRule
	err   error
}

func (f *fakeStore) FindAppointments(_ context.Context, dentistID string, date civil.Date) ([]model.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if a.DentistID == dentistID && a.Date == date && a.Blocks() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) FindWorkingHourRules(_ context.Context, dentistID string, day int) ([]model.WorkingHourRule, error) {
	var out []model.WorkingHourRule
	for _, r := range f.rules {
		if r.DentistID == dentistID && r.DayOfWeek == day {
			out = append(out, r)
		}
	}
	return out, nil
}

var (
	monday = civil.Date{Year: 2026, Month: 3, Day: 2}
	// Sunday evening before.
	fixedNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
)

func proposal(start, end string) model.Appointment {
	return model.Appointment{
		PatientID: "patient-1",
		DentistID: "dentist-1",
		Date:      monday,
		StartTime: timeofday.MustParse(start),
		EndTime:   timeofday.MustParse(end),
		Status:    model.StatusPending,
	}
}

func newValidator(store *fakeStore, opts ...Option) *Validator {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewValidator(store, time.UTC, opts...)
}

func TestValidate_Accepts(t *testing.T) {
	if err := newValidator(&fakeStore{}).Validate(context.Background(), proposal("09:00", "09:30")); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidate_InvalidTimeRange(t *testing.T) {
	for _, p := range []model.Appointment{proposal("10:00", "10:00"), proposal("10:30", "10:00")} {
		err := newValidator(&fakeStore{}).Validate(context.Background(), p)
		if !errors.Is(err, model.ErrInvalidTimeRange) {
			t.Fatalf("expected invalid time range, got %v", err)
		}
	}
}

func TestValidate_PastDateTime(t *testing.T) {
	v := NewValidator(&fakeStore{}, time.UTC, WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}))
	if err := v.Validate(context.Background(), proposal("09:00", "09:30")); !errors.Is(err, model.ErrPastDateTime) {
		t.Fatalf("a start equal to now is not in the future, got %v", err)
	}
	if err := v.Validate(context.Background(), proposal("08:00", "08:30")); !errors.Is(err, model.ErrPastDateTime) {
		t.Fatalf("expected past date time, got %v", err)
	}
	if err := v.Validate(context.Background(), proposal("09:01", "09:30")); err != nil {
		t.Fatalf("one minute ahead should pass, got %v", err)
	}
}

func TestValidate_PastUsesClinicTimezone(t *testing.T) {
	loc := time.FixedZone("clinic", 3*3600)
	// 06:30 UTC is 09:30 at the clinic.
	v := NewValidator(&fakeStore{}, loc, WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)
	}))
	if err := v.Validate(context.Background(), proposal("09:00", "09:30")); !errors.Is(err, model.ErrPastDateTime) {
		t.Fatalf("expected past date time in clinic zone, got %v", err)
	}
}

func TestValidate_PastOnSpringForwardDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// Clocks jump from 02:00 to 03:00 on 2026-03-08.
	day := civil.Date{Year: 2026, Month: 3, Day: 8}
	v := NewValidator(&fakeStore{}, loc, WithClock(func() time.Time {
		return time.Date(2026, 3, 8, 9, 30, 0, 0, loc)
	}))

	started := proposal("09:00", "09:30")
	started.Date = day
	if err := v.Validate(context.Background(), started); !errors.Is(err, model.ErrPastDateTime) {
		t.Fatalf("09:00 booking at 09:30 local should be past, got %v", err)
	}

	later := proposal("10:00", "10:30")
	later.Date = day
	if err := v.Validate(context.Background(), later); err != nil {
		t.Fatalf("10:00 booking at 09:30 local should pass, got %v", err)
	}
}

func TestValidate_SlotConflict(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: "a1", DentistID: "dentist-1", Date: monday, StartTime: 540, EndTime: 570, Status: model.StatusConfirmed},
	}}
	err := newValidator(store).Validate(context.Background(), proposal("09:15", "09:45"))
	if !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if err := newValidator(store).Validate(context.Background(), proposal("09:30", "10:00")); err != nil {
		t.Fatalf("back-to-back booking should pass, got %v", err)
	}
}

func TestValidate_CancelledDoesNotConflict(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: "a1", DentistID: "dentist-1", Date: monday, StartTime: 540, EndTime: 570, Status: model.StatusCancelled},
	}}
	if err := newValidator(store).Validate(context.Background(), proposal("09:00", "09:30")); err != nil {
		t.Fatalf("cancelled appointment should not conflict, got %v", err)
	}
}

func TestValidate_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	err := newValidator(&fakeStore{err: boom}).Validate(context.Background(), proposal("09:00", "09:30"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	var rej *model.Rejection
	if errors.As(err, &rej) {
		t.Fatalf("store failure must not look like a rejection")
	}
}

func TestValidate_WorkingHoursGuardrail(t *testing.T) {
	store := &fakeStore{rules: []model.WorkingHourRule{
		{DentistID: "dentist-1", DayOfWeek: 1, StartTime: 540, EndTime: 720, IsAvailable: true},
		{DentistID: "dentist-1", DayOfWeek: 1, StartTime: 780, EndTime: 900, IsAvailable: false},
	}}
	v := newValidator(store, WithWorkingHours(store))

	if err := v.Validate(context.Background(), proposal("11:30", "12:00")); err != nil {
		t.Fatalf("inside hours should pass, got %v", err)
	}
	if err := v.Validate(context.Background(), proposal("11:45", "12:15")); !errors.Is(err, model.ErrOutsideWorkingHours) {
		t.Fatalf("straddling the end should be rejected, got %v", err)
	}
	if err := v.Validate(context.Background(), proposal("13:00", "13:30")); !errors.Is(err, model.ErrOutsideWorkingHours) {
		t.Fatalf("disabled rule should not admit bookings, got %v", err)
	}
}
