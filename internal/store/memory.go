package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
)

// Memory implements ListingStore, AlertStore and EventLog in process memory.
// It backs tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	listings map[string]model.Listing
	byKey    map[string]string
	alerts   map[string]model.Alert
	events   []model.RetirementEvent
}

func NewMemory() *Memory {
	return &Memory{
		listings: make(map[string]model.Listing),
		byKey:    make(map[string]string),
		alerts:   make(map[string]model.Alert),
	}
}

func identity(provider, key string) string {
	return provider + "\x00" + key
}

func (m *Memory) FindByKey(_ context.Context, provider, key string) (model.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[identity(provider, key)]
	if !ok {
		return model.Listing{}, ErrNotFound
	}
	return clone(m.listings[id]), nil
}

func (m *Memory) Insert(_ context.Context, l model.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := identity(l.Provider, l.Key)
	if _, ok := m.byKey[k]; ok {
		return ErrDuplicate
	}
	if _, ok := m.listings[l.ID]; ok {
		return ErrDuplicate
	}
	m.byKey[k] = l.ID
	m.listings[l.ID] = clone(l)
	return nil
}

func (m *Memory) update(id string, fn func(*model.Listing)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	fn(&l)
	m.listings[id] = l
	return nil
}

func (m *Memory) UpdateDescriptive(_ context.Context, id string, d model.Descriptive, at time.Time) error {
	return m.update(id, func(l *model.Listing) {
		l.Apply(d)
		l.UpdatedAt = at
	})
}

func (m *Memory) MarkChecked(_ context.Context, id string, at time.Time, statusErr string) error {
	return m.update(id, func(l *model.Listing) {
		l.StatusCheckedAt = &at
		l.LastProbeAt = &at
		l.StatusError = statusErr
	})
}

func (m *Memory) MarkProbed(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(l *model.Listing) {
		l.LastProbeAt = &at
	})
}

func (m *Memory) Retire(_ context.Context, id string, reason model.RetireReason, at time.Time, statusErr string) error {
	return m.update(id, func(l *model.Listing) {
		l.Active = false
		l.RetiredReason = reason
		l.StatusCheckedAt = &at
		l.LastProbeAt = &at
		l.StatusError = statusErr
		l.UpdatedAt = at
	})
}

func (m *Memory) ListActiveForCheck(_ context.Context, limit int) ([]model.Listing, error) {
	out := m.collect(func(l model.Listing) bool { return l.Active })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastProbeAt, out[j].LastProbeAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	return head(out, limit), nil
}

func (m *Memory) ListActiveCreatedBefore(_ context.Context, before time.Time, limit int) ([]model.Listing, error) {
	out := m.collect(func(l model.Listing) bool { return l.Active && l.CreatedAt.Before(before) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return head(out, limit), nil
}

func (m *Memory) ListActiveAfter(_ context.Context, afterID string, limit int) ([]model.Listing, error) {
	out := m.collect(func(l model.Listing) bool { return l.Active && l.ID > afterID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return head(out, limit), nil
}

func (m *Memory) FindListings(_ context.Context, q ListingQuery) ([]model.Listing, error) {
	out := m.collect(q.Matches)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, q.Limit), nil
}

func (m *Memory) ListInactive(_ context.Context, limit int) ([]model.Listing, error) {
	out := m.collect(func(l model.Listing) bool { return !l.Active })
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return head(out, limit), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byKey, identity(l.Provider, l.Key))
	delete(m.listings, id)
	return nil
}

// Listing returns a stored listing by id. Used by tests and the console.
func (m *Memory) Listing(id string) (model.Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	return clone(l), ok
}

// Count returns the number of stored listings.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listings)
}

func (m *Memory) SaveAlert(_ context.Context, a model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return nil
}

func (m *Memory) ListActiveAlerts(_ context.Context) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) MarkDispatched(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.LastDispatchedAt = &at
	m.alerts[id] = a
	return nil
}

// Alert returns a stored alert by id.
func (m *Memory) Alert(id string) (model.Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	return a, ok
}

func (m *Memory) RecordRetirement(_ context.Context, e model.RetirementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns the retirement log in insertion order.
func (m *Memory) Events() []model.RetirementEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

func (m *Memory) collect(keep func(model.Listing) bool) []model.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Listing
	for _, l := range m.listings {
		if keep(l) {
			out = append(out, clone(l))
		}
	}
	return out
}

func head(ls []model.Listing, limit int) []model.Listing {
	if limit > 0 && len(ls) > limit {
		return ls[:limit]
	}
	return ls
}

// clone deep-copies l so callers cannot mutate stored state.
func clone(l model.Listing) model.Listing {
	l.Surface = clonePtr(l.Surface)
	l.Rooms = clonePtr(l.Rooms)
	l.Bedrooms = clonePtr(l.Bedrooms)
	l.Furnished = clonePtr(l.Furnished)
	l.Coordinates = clonePtr(l.Coordinates)
	l.StatusCheckedAt = clonePtr(l.StatusCheckedAt)
	l.LastProbeAt = clonePtr(l.LastProbeAt)
	l.Features = slices.Clone(l.Features)
	l.Images = slices.Clone(l.Images)
	return l
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
