// Package rules maintains dentists' recurring weekly working hours.
package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/internal/storage"
)

type Store interface {
	FindWorkingHourRules(ctx context.Context, dentistID string, dayOfWeek int) ([]model.WorkingHourRule, error)
	GetWorkingHourRule(ctx context.Context, id string) (model.WorkingHourRule, error)
	InsertWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error)
	UpdateWorkingHourRule(ctx context.Context, r model.WorkingHourRule, events ...outbox.Event) (model.WorkingHourRule, error)
	DeleteWorkingHourRule(ctx context.Context, id string, events ...outbox.Event) error
}

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

// Create validates and stores a new rule. The store's exclusion check backs up the
// overlap check here when two creates race.
func (m *Manager) Create(ctx context.Context, actor model.Actor, r model.WorkingHourRule) (model.WorkingHourRule, error) {
	if !actor.CanManageDentist(r.DentistID) {
		return model.WorkingHourRule{}, forbidden(actor, r.DentistID)
	}
	r.ID = ""
	if err := m.check(ctx, r); err != nil {
		return model.WorkingHourRule{}, err
	}

	evt, err := outbox.WorkingHoursChanged(r, "created", m.now())
	if err != nil {
		return model.WorkingHourRule{}, err
	}
	saved, err := m.store.InsertWorkingHourRule(ctx, r, evt)
	if err != nil {
		return model.WorkingHourRule{}, translate(err, r)
	}
	return saved, nil
}

// Update applies changes to an existing rule and re-validates the result, ignoring the
// rule's own previous version in the overlap check.
func (m *Manager) Update(ctx context.Context, actor model.Actor, id string, changes model.RuleChanges) (model.WorkingHourRule, error) {
	current, err := m.store.GetWorkingHourRule(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.WorkingHourRule{}, model.Rejectf(model.ReasonNotFound, "working hour rule %s not found", id)
		}
		return model.WorkingHourRule{}, fmt.Errorf("get working hour rule: %w", err)
	}
	if !actor.CanManageDentist(current.DentistID) {
		return model.WorkingHourRule{}, forbidden(actor, current.DentistID)
	}

	next := changes.Apply(current)
	if err := m.check(ctx, next); err != nil {
		return model.WorkingHourRule{}, err
	}

	evt, err := outbox.WorkingHoursChanged(next, "updated", m.now())
	if err != nil {
		return model.WorkingHourRule{}, err
	}
	saved, err := m.store.UpdateWorkingHourRule(ctx, next, evt)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.WorkingHourRule{}, model.Rejectf(model.ReasonNotFound, "working hour rule %s not found", id)
		}
		return model.WorkingHourRule{}, translate(err, next)
	}
	return saved, nil
}

// Delete removes a rule. Deleting a rule that does not exist succeeds. Appointments are never touched.
func (m *Manager) Delete(ctx context.Context, actor model.Actor, id string) error {
	current, err := m.store.GetWorkingHourRule(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("get working hour rule: %w", err)
	}
	if !actor.CanManageDentist(current.DentistID) {
		return forbidden(actor, current.DentistID)
	}

	evt, err := outbox.WorkingHoursChanged(current, "deleted", m.now())
	if err != nil {
		return err
	}
	if err := m.store.DeleteWorkingHourRule(ctx, id, evt); err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("delete working hour rule: %w", err)
	}
	return nil
}

// List returns every rule of the dentist, by day then start time.
func (m *Manager) List(ctx context.Context, dentistID string) ([]model.WorkingHourRule, error) {
	rules, err := m.store.FindWorkingHourRules(ctx, dentistID, storage.AllDays)
	if err != nil {
		return nil, fmt.Errorf("find working hour rules: %w", err)
	}
	return rules, nil
}

func (m *Manager) check(ctx context.Context, r model.WorkingHourRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	// Disabled rules never block anything, so they are not checked for overlap.
	if !r.IsAvailable {
		return nil
	}
	existing, err := m.store.FindWorkingHourRules(ctx, r.DentistID, r.DayOfWeek)
	if err != nil {
		return fmt.Errorf("find working hour rules: %w", err)
	}
	for _, other := range existing {
		if other.ID == r.ID || !other.IsAvailable {
			continue
		}
		if other.Interval().Overlaps(r.Interval()) {
			return model.Rejectf(model.ReasonRuleOverlap, "%s-%s overlaps rule %s (%s-%s)",
				r.StartTime, r.EndTime, other.ID, other.StartTime, other.EndTime)
		}
	}
	return nil
}

func translate(err error, r model.WorkingHourRule) error {
	if errors.Is(err, storage.ErrConflict) {
		return model.Rejectf(model.ReasonRuleOverlap, "%s-%s overlaps another rule on day %d", r.StartTime, r.EndTime, r.DayOfWeek)
	}
	return fmt.Errorf("store working hour rule: %w", err)
}

func forbidden(actor model.Actor, dentistID string) error {
	return model.Rejectf(model.ReasonForbidden, "%s %q may not manage working hours of dentist %q", actor.Role, actor.UserID, dentistID)
}
