package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

// memStore is an in-memory Store and UnitOfWork. With exclusive set it
// rejects overlapping active appointments the way the exclusion constraint does.
type memStore struct {
	mu        sync.Mutex
	appts     map[string]model.Appointment
	events    []outbox.Event
	seq       int
	exclusive bool
	hidden    map[string]bool
	now       func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{appts: map[string]model.Appointment{}, hidden: map[string]bool{}, now: now}
}

func (m *memStore) QueryAppointmentsByDateRange(_ context.Context, start, end time.Time, artistID string) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for id, a := range m.appts {
		if m.hidden[id] || a.StartTime.Before(start) || a.StartTime.After(end) {
			continue
		}
		if artistID != "" && a.ArtistID != artistID {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return (f.ClientID == "" || a.ClientID == f.ClientID) &&
			(f.ArtistID == "" || a.ArtistID == f.ArtistID) &&
			(f.Status == "" || a.Status == f.Status)
	}), nil
}

func (m *memStore) AttachDepositSession(_ context.Context, id, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.DepositSessionID = sessionID
	m.appts[id] = a
	return nil
}

func (m *memStore) FinishedUpcoming(_ context.Context, endedBefore time.Time, _ int) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.Status == model.StatusUpcoming && !a.EndTime.After(endedBefore)
	}), nil
}

func (m *memStore) StalePending(_ context.Context, createdBefore time.Time, _ int) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.Status == model.StatusPending && a.CreatedAt.Before(createdBefore)
	}), nil
}

func (m *memStore) DueReminders(_ context.Context, from, to time.Time, _ int) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.Status == model.StatusUpcoming && a.ReminderSentAt == nil &&
			!a.StartTime.Before(from) && a.StartTime.Before(to)
	}), nil
}

func (m *memStore) filter(keep func(model.Appointment) bool) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context, w TxWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]model.Appointment, len(m.appts))
	for k, v := range m.appts {
		snapshot[k] = v
	}
	events := len(m.events)
	if err := fn(ctx, memTx{m}); err != nil {
		m.appts = snapshot
		m.events = m.events[:events]
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) CreateAppointment(_ context.Context, a *model.Appointment) error {
	if t.m.exclusive && a.Status.IsActive() {
		for _, o := range t.m.appts {
			if o.ArtistID == a.ArtistID && o.Status.IsActive() && scheduling.Overlaps(a.StartTime, a.EndTime, o.StartTime, o.EndTime) {
				return scheduling.ErrSlotConflict
			}
		}
	}
	t.m.seq++
	a.ID = fmt.Sprintf("appt-%d", t.m.seq)
	a.CreatedAt = t.m.now()
	a.UpdatedAt = a.CreatedAt
	t.m.appts[a.ID] = *a
	return nil
}

func (t memTx) LockAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (t memTx) UpdateStatus(_ context.Context, id string, to model.Status, reason string) (model.Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	a.Status = to
	if reason != "" {
		a.CancelReason = reason
	}
	t.m.appts[id] = a
	return a, nil
}

func (t memTx) MarkReminderSent(_ context.Context, id string) error {
	a := t.m.appts[id]
	now := t.m.now()
	a.ReminderSentAt = &now
	t.m.appts[id] = a
	return nil
}

func (t memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.m.events = append(t.m.events, evt)
	return nil
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

// insert stores an appointment directly, bypassing any constraint.
func (m *memStore) insert(a model.Appointment) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a.ID = fmt.Sprintf("appt-%d", m.seq)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	m.appts[a.ID] = a
	return a.ID
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

type staticRoster []model.Artist

func (r staticRoster) Active(context.Context) ([]model.Artist, error) {
	return []model.Artist(r), nil
}

type fakeCheckout struct {
	err   error
	calls int
}

func (f *fakeCheckout) CreateDepositSession(_ context.Context, appt model.Appointment, _ catalog.Service, _ string) (CheckoutSession, error) {
	f.calls++
	if f.err != nil {
		return CheckoutSession{}, f.err
	}
	return CheckoutSession{ID: "cs_" + appt.ID, URL: "https://pay.example/" + appt.ID}, nil
}

var (
	errCheckoutDown = errors.New("checkout down")

	artistAda = model.Artist{ID: "artist-ada", FirstName: "Ada", LastName: "Lines", Active: true, Position: 1}
	artistBo  = model.Artist{ID: "artist-bo", FirstName: "Bo", LastName: "Shade", Active: true, Position: 2}
	fixedNow  = time.Date(2030, 1, 14, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	store    *memStore
	svc      *Service
	checkout *fakeCheckout
	now      time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	mode     string
	checkout *fakeCheckout
	roster   []model.Artist
}

func withMode(mode string) fixtureOption {
	return func(c *fixtureConfig) { c.mode = mode }
}

func withCheckout(ch *fakeCheckout) fixtureOption {
	return func(c *fixtureConfig) { c.checkout = ch }
}

func withRoster(artists ...model.Artist) fixtureOption {
	return func(c *fixtureConfig) { c.roster = artists }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{mode: ConsistencyOptimistic, roster: []model.Artist{artistAda, artistBo}}
	for _, o := range opts {
		o(&cfg)
	}
	f := &fixture{now: fixedNow, checkout: cfg.checkout}
	clock := func() time.Time { return f.now }
	f.store = newMemStore(clock)
	f.store.exclusive = cfg.mode == ConsistencyExclusive

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hours := scheduling.DefaultHours(time.UTC)
	reserver, err := NewReserver(cfg.mode, f.store, scheduling.NewResolver(f.store, hours))
	if err != nil {
		t.Fatalf("new reserver: %v", err)
	}
	deps := Deps{
		Store:      f.store,
		UoW:        f.store,
		Roster:     staticRoster(cfg.roster),
		Reserver:   reserver,
		Calculator: scheduling.NewCalculator(f.store, hours, logger, nil),
		Catalog:    catalog.Default(),
		Logger:     logger,
	}
	if cfg.checkout != nil {
		deps.Checkout = cfg.checkout
	}
	f.svc = NewService(deps)
	f.svc.now = clock
	return f
}

func guest(serviceID, date, clock string, choice scheduling.ArtistChoice) BookRequest {
	return BookRequest{
		ServiceID:   serviceID,
		Date:        date,
		Time:        clock,
		Choice:      choice,
		ClientName:  "Walk In",
		ClientEmail: "walkin@example.com",
	}
}
