package storage

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
)

var (
	// ErrConflict means an exclusion constraint rejected the write.
	ErrConflict = errors.New("storage: conflicting row")
	ErrNotFound = errors.New("storage: not found")
)

// AllDays selects rules for every weekday in FindWorkingHourRules.
const AllDays = -1

// Page sizes for ListAppointments. A zero Limit means DefaultListLimit.
const (
	DefaultListLimit = 200
	MaxListLimit     = 1000
)

// AppointmentFilter narrows ListAppointments. Empty fields are ignored; From and To are inclusive.
type AppointmentFilter struct {
	DentistID string
	PatientID string
	From      *civil.Date
	To        *civil.Date
	Limit     int
}

// AppointmentMutation receives the locked current row and returns the row to store plus
// the events to record with it. Returning an error aborts without writing.
type AppointmentMutation func(current model.Appointment) (model.Appointment, []outbox.Event, error)

// Store is the persistence boundary of the scheduler. Implementations must enforce the
// no-overlap rules for enabled working hours and non-cancelled appointments atomically,
// reporting a violation as ErrConflict.
type Store interface {
	FindWorkingHourRules(ctx context.Context, dentistID string, dayOfWeek int) ([]model.WorkingHourRule, error)
	GetWorkingHourRule(ctx context.Context, id string) (model.WorkingHourRule, error)
	InsertWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error)
	UpdateWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error)
	DeleteWorkingHourRule(ctx context.Context, id string, events ...outbox.Event) error

	// FindAppointments returns the dentist's non-cancelled appointments on date, by start time.
	FindAppointments(ctx context.Context, dentistID string, date civil.Date) ([]model.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, a model.Appointment, events ...outbox.Event) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, mutate AppointmentMutation) (model.Appointment, error)

	FindService(ctx context.Context, id string) (model.Service, error)
	UpsertService(ctx context.Context, s model.Service) error
}

// DB is the subset of pgxpool.Pool the Postgres repository needs; pgxmock pools satisfy it too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
