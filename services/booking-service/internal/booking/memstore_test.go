package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/promo"
)

// memStore is an in-memory Store with per-staff mutexes and commit-on-success.
type memStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	appts  map[string]model.Appointment
	events []outbox.Event
	promos map[string]promo.Code
	seq    int

	// promoMu stands in for the promo row lock.
	promoMu sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		locks:  map[string]*sync.Mutex{},
		appts:  map[string]model.Appointment{},
		promos: map[string]promo.Code{},
	}
}

func (s *memStore) addPromo(c promo.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[promo.Normalize(c.Code)] = c
}

func (s *memStore) promo(code string) promo.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[promo.Normalize(code)]
}

func (s *memStore) staffLock(staffID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[staffID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[staffID] = l
	}
	return l
}

func (s *memStore) ListActive(_ context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listActive(s.appts, staffID, from, to), nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	return a, nil
}

func (s *memStore) WithStaffLock(ctx context.Context, staffID string, fn func(context.Context, Tx) error) error {
	l := s.staffLock(staffID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	staged := make(map[string]model.Appointment, len(s.appts))
	for k, v := range s.appts {
		staged[k] = v
	}
	s.mu.Unlock()

	tx := &memTx{store: s, appts: staged}
	defer func() {
		if tx.promoLocked {
			s.promoMu.Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.appts {
		s.appts[id] = a
	}
	s.events = append(s.events, tx.events...)
	for _, id := range tx.promoUses {
		for code, c := range s.promos {
			if c.ID == id {
				c.CurrentUses++
				s.promos[code] = c
			}
		}
	}
	return nil
}

func (s *memStore) put(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = a
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts)
}

type memTx struct {
	store       *memStore
	appts       map[string]model.Appointment
	events      []outbox.Event
	promoUses   []string
	promoLocked bool
}

func (t *memTx) ListActive(_ context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listActive(t.appts, staffID, from, to), nil
}

func (t *memTx) Create(_ context.Context, a *model.Appointment) error {
	t.store.mu.Lock()
	t.store.seq++
	a.ID = fmt.Sprintf("appt-%d", t.store.seq)
	t.store.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	t.appts[a.ID] = *a
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) UpdateStatus(_ context.Context, a model.Appointment) error {
	t.appts[a.ID] = a
	return nil
}

func (t *memTx) RecordEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) LockPromo(_ context.Context, code string) (promo.Code, error) {
	if !t.promoLocked {
		t.store.promoMu.Lock()
		t.promoLocked = true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.promos[promo.Normalize(code)]
	if !ok {
		return promo.Code{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) CustomerPromoUses(_ context.Context, promoID, email, phone string) (int, error) {
	n := 0
	for _, a := range t.appts {
		if a.PromoCodeID != promoID || a.Status == model.StatusCancelled {
			continue
		}
		if (email != "" && a.CustomerEmail == email) || (phone != "" && a.CustomerPhone == phone) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) RecordPromoUse(_ context.Context, promoID string) error {
	t.promoUses = append(t.promoUses, promoID)
	return nil
}

func listActive(appts map[string]model.Appointment, staffID string, from, to time.Time) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.StaffID == staffID && a.Status.Active() && a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out
}

type memCatalog struct {
	services map[string]model.Service
	staff    map[string]model.Staff
}

func (c memCatalog) GetService(_ context.Context, id string) (model.Service, error) {
	s, ok := c.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (c memCatalog) GetStaff(_ context.Context, id string) (model.Staff, error) {
	s, ok := c.staff[id]
	if !ok {
		return model.Staff{}, ErrNotFound
	}
	return s, nil
}
