package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
)

// MemoryStore is a Store held in process memory. Every write checks the overlap rules and
// applies under one lock, which gives the same guarantee as the Postgres constraints.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int64
	rules    map[string]model.WorkingHourRule
	ruleSeq  map[string]int64
	appts    map[string]model.Appointment
	services map[string]model.Service
	events   []outbox.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		rules:    map[string]model.WorkingHourRule{},
		ruleSeq:  map[string]int64{},
		appts:    map[string]model.Appointment{},
		services: map[string]model.Service{},
	}
}

// Events returns the events recorded so far, oldest first.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryStore) FindWorkingHourRules(ctx context.Context, dentistID string, dayOfWeek int) ([]model.WorkingHourRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.WorkingHourRule
	for _, r := range m.rules {
		if r.DentistID != dentistID {
			continue
		}
		if dayOfWeek >= 0 && r.DayOfWeek != dayOfWeek {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return m.ruleSeq[a.ID] < m.ruleSeq[b.ID]
	})
	return out, nil
}

func (m *MemoryStore) GetWorkingHourRule(ctx context.Context, id string) (model.WorkingHourRule, error) {
	if err := ctx.Err(); err != nil {
		return model.WorkingHourRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return model.WorkingHourRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) InsertWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error) {
	if err := ctx.Err(); err != nil {
		return model.WorkingHourRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := m.rules[r.ID]; exists {
		return model.WorkingHourRule{}, fmt.Errorf("working hour rule %s already exists", r.ID)
	}
	if m.ruleOverlapLocked(r) {
		return model.WorkingHourRule{}, fmt.Errorf("%w: working_hour_rules_no_overlap", ErrConflict)
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.seq++
	m.ruleSeq[r.ID] = m.seq
	m.rules[r.ID] = r
	m.events = append(m.events, events...)
	return r, nil
}

func (m *MemoryStore) UpdateWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error) {
	if err := ctx.Err(); err != nil {
		return model.WorkingHourRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[r.ID]
	if !ok {
		return model.WorkingHourRule{}, ErrNotFound
	}
	if m.ruleOverlapLocked(r) {
		return model.WorkingHourRule{}, fmt.Errorf("%w: working_hour_rules_no_overlap", ErrConflict)
	}
	r.DentistID = current.DentistID
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = m.now()
	m.rules[r.ID] = r
	m.events = append(m.events, events...)
	return r, nil
}

func (m *MemoryStore) DeleteWorkingHourRule(ctx context.Context, id string, events ...outbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	delete(m.ruleSeq, id)
	m.events = append(m.events, events...)
	return nil
}

// ruleOverlapLocked mirrors the partial exclusion constraint: only enabled rules collide.
func (m *MemoryStore) ruleOverlapLocked(r model.WorkingHourRule) bool {
	if !r.IsAvailable {
		return false
	}
	for id, other := range m.rules {
		if id == r.ID || !other.IsAvailable {
			continue
		}
		if other.DentistID == r.DentistID && other.DayOfWeek == r.DayOfWeek && other.Interval().Overlaps(r.Interval()) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) FindAppointments(ctx context.Context, dentistID string, date civil.Date) ([]model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Appointment
	for _, a := range m.appts {
		if a.DentistID == dentistID && a.Date == date && a.Blocks() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *MemoryStore) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Appointment
	for _, a := range m.appts {
		if f.DentistID != "" && a.DentistID != f.DentistID {
			continue
		}
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.From != nil && a.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && a.Date.After(*f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) InsertAppointment(ctx context.Context, a model.Appointment, events ...outbox.Event) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := m.appts[a.ID]; exists {
		return model.Appointment{}, fmt.Errorf("appointment %s already exists", a.ID)
	}
	if a.Blocks() {
		for _, other := range m.appts {
			if other.Blocks() && other.DentistID == a.DentistID && other.Date == a.Date && other.Interval().Overlaps(a.Interval()) {
				return model.Appointment{}, fmt.Errorf("%w: appointments_no_double_booking", ErrConflict)
			}
		}
	}
	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.appts[a.ID] = a
	m.events = append(m.events, events...)
	return a, nil
}

func (m *MemoryStore) UpdateAppointment(ctx context.Context, id string, mutate AppointmentMutation) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	next, events, err := mutate(current)
	if err != nil {
		return model.Appointment{}, err
	}
	if next.Status == current.Status && len(events) == 0 {
		return current, nil
	}
	next.ID = current.ID
	next.UpdatedAt = m.now()
	m.appts[id] = next
	m.events = append(m.events, events...)
	return next, nil
}

func (m *MemoryStore) FindService(ctx context.Context, id string) (model.Service, error) {
	if err := ctx.Err(); err != nil {
		return model.Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) UpsertService(ctx context.Context, s model.Service) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
	return nil
}

var _ Store = (*MemoryStore)(nil)
