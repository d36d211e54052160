package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/timeofday"
)

// Repository is the Postgres Store. Overlap rules are enforced by the EXCLUDE constraints
// in the schema, so concurrent writers cannot both succeed.
type Repository struct {
	db     DB
	outbox *outbox.Repository
}

func NewRepository(db DB, outboxRepo *outbox.Repository) *Repository {
	return &Repository{db: db, outbox: outboxRepo}
}

const ruleColumns = `id::text, dentist_id, day_of_week, start_minute, end_minute, is_available, created_at, updated_at`

const appointmentColumns = `id::text, patient_id, dentist_id, service_id, appointment_date::text, start_minute, end_minute,
	status, COALESCE(cancel_reason, ''), cancelled_at, created_at, updated_at`

func (r *Repository) FindWorkingHourRules(ctx context.Context, dentistID string, dayOfWeek int) ([]model.WorkingHourRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM working_hour_rules
		WHERE dentist_id = $1
			AND ($2::int < 0 OR day_of_week = $2::int)
		ORDER BY day_of_week, start_minute, created_at
	`, dentistID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.WorkingHourRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Repository) GetWorkingHourRule(ctx context.Context, id string) (model.WorkingHourRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM working_hour_rules
		WHERE id = $1
	`, id))
	if err != nil {
		return model.WorkingHourRule{}, translate(err)
	}
	return rule, nil
}

func (r *Repository) InsertWorkingHourRule(ctx context.Context, rule model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	err := r.inTx(ctx, events, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO working_hour_rules (id, dentist_id, day_of_week, start_minute, end_minute, is_available)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`, rule.ID, rule.DentistID, rule.DayOfWeek, rule.StartTime.Minutes(), rule.EndTime.Minutes(), rule.IsAvailable).
			Scan(&rule.CreatedAt, &rule.UpdatedAt)
	})
	if err != nil {
		return model.WorkingHourRule{}, err
	}
	return rule, nil
}

func (r *Repository) UpdateWorkingHourRule(ctx context.Context, rule model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error) {
	err := r.inTx(ctx, events, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE working_hour_rules
			SET day_of_week = $2,
				start_minute = $3,
				end_minute = $4,
				is_available = $5,
				updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, rule.ID, rule.DayOfWeek, rule.StartTime.Minutes(), rule.EndTime.Minutes(), rule.IsAvailable).
			Scan(&rule.UpdatedAt)
	})
	if err != nil {
		return model.WorkingHourRule{}, err
	}
	return rule, nil
}

func (r *Repository) DeleteWorkingHourRule(ctx context.Context, id string, events ...outbox.Event) error {
	return r.inTx(ctx, events, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM working_hour_rules WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repository) FindAppointments(ctx context.Context, dentistID string, date civil.Date) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1
			AND appointment_date = $2::date
			AND status <> 'cancelled'
		ORDER BY start_minute
	`, dentistID, date.String())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *Repository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text = '' OR dentist_id = $1::text)
			AND ($2::text = '' OR patient_id = $2::text)
			AND ($3::date IS NULL OR appointment_date >= $3::date)
			AND ($4::date IS NULL OR appointment_date <= $4::date)
		ORDER BY appointment_date, start_minute
		LIMIT $5
	`, f.DentistID, f.PatientID, dateArg(f.From), dateArg(f.To), f.Limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, translate(err)
	}
	return appt, nil
}

func (r *Repository) InsertAppointment(ctx context.Context, a model.Appointment, events ...outbox.Event) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := r.inTx(ctx, events, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, patient_id, dentist_id, service_id, appointment_date, start_minute, end_minute, status)
			VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8)
			RETURNING created_at, updated_at
		`, a.ID, a.PatientID, a.DentistID, a.ServiceID, a.Date.String(), a.StartTime.Minutes(), a.EndTime.Minutes(), string(a.Status)).
			Scan(&a.CreatedAt, &a.UpdatedAt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *Repository) UpdateAppointment(ctx context.Context, id string, mutate AppointmentMutation) (model.Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, translate(err)
	}

	next, events, err := mutate(current)
	if err != nil {
		return model.Appointment{}, err
	}
	if next.Status == current.Status && len(events) == 0 {
		return current, nil
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancel_reason = NULLIF($3, ''),
			cancelled_at = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, current.ID, string(next.Status), next.CancelReason, next.CancelledAt).Scan(&next.UpdatedAt)
	if err != nil {
		return model.Appointment{}, translate(err)
	}
	if err := r.outbox.Insert(ctx, tx, events...); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return next, nil
}

func (r *Repository) FindService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.db.QueryRow(ctx, `
		SELECT id, name, duration_minutes
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes)
	if err != nil {
		return model.Service{}, translate(err)
	}
	return s, nil
}

func (r *Repository) UpsertService(ctx context.Context, s model.Service) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			updated_at = now()
	`, s.ID, s.Name, s.DurationMinutes)
	return err
}

// inTx runs write and the outbox inserts in one transaction.
func (r *Repository) inTx(ctx context.Context, events []outbox.Event, write func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := write(tx); err != nil {
		return translate(err)
	}
	if err := r.outbox.Insert(ctx, tx, events...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// translate maps driver errors onto the storage sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01": // exclusion_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "22P02": // invalid_text_representation: a malformed uuid names no row
			return ErrNotFound
		}
	}
	return err
}

func dateArg(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanRule(row pgx.Row) (model.WorkingHourRule, error) {
	var (
		rule       model.WorkingHourRule
		start, end int
	)
	if err := row.Scan(&rule.ID, &rule.DentistID, &rule.DayOfWeek, &start, &end, &rule.IsAvailable, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return model.WorkingHourRule{}, err
	}
	rule.StartTime = timeofday.Clock(start)
	rule.EndTime = timeofday.Clock(end)
	return rule, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		date        string
		start, end  int
		status      string
		cancelledAt *time.Time
	)
	if err := row.Scan(&appt.ID, &appt.PatientID, &appt.DentistID, &appt.ServiceID, &date, &start, &end,
		&status, &appt.CancelReason, &cancelledAt, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return model.Appointment{}, err
	}
	d, err := civil.ParseDate(date)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: bad date %q: %w", appt.ID, date, err)
	}
	appt.Date = d
	appt.StartTime = timeofday.Clock(start)
	appt.EndTime = timeofday.Clock(end)
	appt.Status = model.Status(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appts, nil
}

var _ Store = (*Repository)(nil)
