package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

// RoleSystem identifies background callers (sweeps, payment webhooks).
const RoleSystem = "system"

var System = auth.Identity{UserID: "booking-service", Role: RoleSystem}

// CheckoutSession is a hosted payment page for an appointment deposit.
type CheckoutSession struct {
	ID  string
	URL string
}

// DepositCheckout creates deposit payment sessions. A nil DepositCheckout
// disables deposits: every booking is confirmed immediately.
type DepositCheckout interface {
	CreateDepositSession(ctx context.Context, appt model.Appointment, svc catalog.Service, currency string) (CheckoutSession, error)
}

// Recorder receives booking outcomes for metrics.
type Recorder interface {
	BookingResult(outcome string)
	Swept(job string, n int)
}

type noopRecorder struct{}

func (noopRecorder) BookingResult(string) {}
func (noopRecorder) Swept(string, int)    {}

type Config struct {
	// PendingTTL is how long an unpaid pending appointment holds its slot.
	PendingTTL time.Duration
	// ReminderLead is how far ahead of the start reminders go out.
	ReminderLead time.Duration
	SweepBatch   int
}

func DefaultConfig() Config {
	return Config{PendingTTL: time.Hour, ReminderLead: 24 * time.Hour, SweepBatch: 100}
}

type Deps struct {
	Store      Store
	UoW        UnitOfWork
	Roster     Roster
	Reserver   Reserver
	Calculator *scheduling.Calculator
	Catalog    *catalog.Catalog
	Checkout   DepositCheckout
	Metrics    Recorder
	Logger     *slog.Logger
	Config     Config
}

type Service struct {
	store    Store
	uow      UnitOfWork
	roster   Roster
	reserver Reserver
	calc     *scheduling.Calculator
	hours    scheduling.Hours
	catalog  *catalog.Catalog
	checkout DepositCheckout
	metrics  Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(d Deps) *Service {
	cfg := d.Config
	def := DefaultConfig()
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = def.ReminderLead
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = def.SweepBatch
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Service{
		store:    d.Store,
		uow:      d.UoW,
		roster:   d.Roster,
		reserver: d.Reserver,
		calc:     d.Calculator,
		hours:    d.Calculator.Hours(),
		catalog:  d.Catalog,
		checkout: d.Checkout,
		metrics:  metrics,
		logger:   d.Logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) Hours() scheduling.Hours { return s.hours }

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// DepositsEnabled reports whether deposit-gated services go through checkout.
func (s *Service) DepositsEnabled() bool { return s.checkout != nil }

func (s *Service) Artists(ctx context.Context) ([]model.Artist, error) {
	return s.roster.Active(ctx)
}

// Availability lists bookable HH:mm starts for serviceID on date (YYYY-MM-DD).
func (s *Service) Availability(ctx context.Context, date, serviceID string, choice scheduling.ArtistChoice) ([]string, error) {
	svc, err := s.catalog.Lookup(serviceID)
	if err != nil {
		return nil, err
	}
	day, err := s.hours.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	roster, err := s.roster.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if c, ok := choice.(scheduling.SpecificArtist); ok {
		if _, ok := findArtist(roster, c.ID); !ok {
			return nil, ErrUnknownArtist
		}
	}
	return s.calc.Availability(ctx, day, svc.Duration(), choice, roster)
}

// BookRequest is a client (or guest) booking. Date is YYYY-MM-DD and Time
// HH:mm, both studio-local.
type BookRequest struct {
	ServiceID   string
	Date        string
	Time        string
	Choice      scheduling.ArtistChoice
	ClientID    string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
}

// Booking is the result of Book. CheckoutURL is set when a deposit is due.
type Booking struct {
	Appointment model.Appointment
	Artist      model.Artist
	CheckoutURL string
}

func (s *Service) Book(ctx context.Context, req BookRequest) (Booking, error) {
	b, err := s.book(ctx, req)
	s.metrics.BookingResult(outcomeOf(err))
	return b, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (Booking, error) {
	svc, err := s.catalog.Lookup(req.ServiceID)
	if err != nil {
		return Booking{}, err
	}
	start, err := s.parseStart(req.Date, req.Time)
	if err != nil {
		return Booking{}, err
	}
	if err := s.checkSlot(start, svc.Duration()); err != nil {
		return Booking{}, err
	}
	if !start.After(s.now()) {
		return Booking{}, fmt.Errorf("%w: start time is in the past", ErrInvalidRequest)
	}
	if err := validateContact(&req); err != nil {
		return Booking{}, err
	}

	status := model.StatusUpcoming
	if svc.RequiresDeposit() && s.checkout != nil {
		status = model.StatusPending
	}
	appt := model.Appointment{
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		ServiceID:   svc.ID,
		Type:        svc.Label,
		StartTime:   start.UTC(),
		EndTime:     start.Add(svc.Duration()).UTC(),
		Status:      status,
		Notes:       strings.TrimSpace(req.Notes),
	}

	appt, artist, err := s.reserve(ctx, appt, req.Choice)
	if err != nil {
		return Booking{}, err
	}
	out := Booking{Appointment: appt, Artist: artist}
	if status != model.StatusPending {
		return out, nil
	}

	session, err := s.checkout.CreateDepositSession(ctx, appt, svc, s.catalog.Currency)
	if err != nil {
		s.logger.Error("deposit checkout failed, releasing slot", "appointment_id", appt.ID, "err", err)
		if _, cerr := s.Transition(ctx, appt.ID, model.StatusCancelled, System, "deposit checkout unavailable"); cerr != nil {
			s.logger.Error("release slot failed", "appointment_id", appt.ID, "err", cerr)
		}
		return Booking{}, fmt.Errorf("create deposit checkout: %w", err)
	}
	if err := s.store.AttachDepositSession(ctx, appt.ID, session.ID); err != nil {
		s.logger.Warn("attach checkout session failed", "appointment_id", appt.ID, "session_id", session.ID, "err", err)
	}
	out.Appointment.DepositSessionID = session.ID
	out.CheckoutURL = session.URL
	return out, nil
}

// ManualEntryRequest is an appointment typed in by studio staff. It is
// confirmed on creation and may be backdated.
type ManualEntryRequest struct {
	BookRequest
}

func (s *Service) ManualEntry(ctx context.Context, actor auth.Identity, req ManualEntryRequest) (Booking, error) {
	if !actor.IsAdmin() {
		return Booking{}, ErrForbidden
	}
	svc, err := s.catalog.Lookup(req.ServiceID)
	if err != nil {
		return Booking{}, err
	}
	start, err := s.parseStart(req.Date, req.Time)
	if err != nil {
		return Booking{}, err
	}
	if err := s.checkSlot(start, svc.Duration()); err != nil {
		return Booking{}, err
	}
	if err := validateContact(&req.BookRequest); err != nil {
		return Booking{}, err
	}
	appt := model.Appointment{
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		ServiceID:   svc.ID,
		Type:        svc.Label,
		StartTime:   start.UTC(),
		EndTime:     start.Add(svc.Duration()).UTC(),
		Status:      model.StatusUpcoming,
		Notes:       strings.TrimSpace(req.Notes),
	}
	appt, artist, err := s.reserve(ctx, appt, req.Choice)
	s.metrics.BookingResult(outcomeOf(err))
	if err != nil {
		return Booking{}, err
	}
	return Booking{Appointment: appt, Artist: artist}, nil
}

func (s *Service) reserve(ctx context.Context, appt model.Appointment, choice scheduling.ArtistChoice) (model.Appointment, model.Artist, error) {
	if choice == nil {
		choice = scheduling.AnyArtist{}
	}
	roster, err := s.roster.Active(ctx)
	if err != nil {
		return model.Appointment{}, model.Artist{}, fmt.Errorf("load roster: %w", err)
	}
	now := s.now()
	return s.reserver.Reserve(ctx, Reservation{
		Appointment: appt,
		Choice:      choice,
		Roster:      roster,
		Event: func(a model.Appointment, artist model.Artist) (outbox.Event, error) {
			return newAppointmentEvent(eventForStatus(a.Status), a, artist.DisplayName(), now)
		},
	})
}

// Transition moves an appointment along its lifecycle on behalf of actor and
// emits the matching event.
func (s *Service) Transition(ctx context.Context, id string, to model.Status, actor auth.Identity, reason string) (model.Appointment, error) {
	var updated model.Appointment
	err := s.uow.Do(ctx, func(ctx context.Context, w TxWriter) error {
		appt, err := w.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, appt, to); err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		updated, err = w.UpdateStatus(ctx, id, to, reason)
		if err != nil {
			return err
		}
		evt, err := newAppointmentEvent(eventForStatus(to), updated, s.artistName(ctx, updated.ArtistID), s.now())
		if err != nil {
			return err
		}
		return w.Enqueue(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment status changed", "appointment_id", id, "status", to, "actor_role", actor.Role)
	return updated, nil
}

// Cancel cancels an appointment. Clients may only cancel their own.
func (s *Service) Cancel(ctx context.Context, id string, actor auth.Identity, reason string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusCancelled, actor, reason)
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	return s.store.List(ctx, f)
}

// DepositPaid confirms a pending appointment after its deposit cleared.
// Repeated or late notifications are ignored.
func (s *Service) DepositPaid(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id, model.StatusUpcoming, System, "")
	if errors.Is(err, ErrInvalidTransition) {
		s.logger.Info("deposit paid for appointment no longer pending", "appointment_id", id)
		return nil
	}
	return err
}

// DepositExpired frees the slot of an appointment whose checkout expired.
func (s *Service) DepositExpired(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id, model.StatusCancelled, System, "deposit not paid")
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// CompleteFinished marks upcoming appointments whose end has passed as completed.
func (s *Service) CompleteFinished(ctx context.Context) (int, error) {
	appts, err := s.store.FinishedUpcoming(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, "complete", appts, model.StatusCompleted, "")
}

// ExpireStalePending cancels pending appointments older than PendingTTL.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	appts, err := s.store.StalePending(ctx, s.now().Add(-s.cfg.PendingTTL), s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, "expire", appts, model.StatusCancelled, "deposit not paid in time")
}

func (s *Service) sweep(ctx context.Context, job string, appts []model.Appointment, to model.Status, reason string) (int, error) {
	n := 0
	for _, a := range appts {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := s.Transition(ctx, a.ID, to, System, reason); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Error("sweep transition failed", "job", job, "appointment_id", a.ID, "err", err)
			continue
		}
		n++
	}
	s.metrics.Swept(job, n)
	return n, nil
}

// SendDueReminders emits one reminder event per upcoming appointment starting
// within ReminderLead.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	appts, err := s.store.DueReminders(ctx, now, now.Add(s.cfg.ReminderLead), s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range appts {
		sent := false
		err := s.uow.Do(ctx, func(ctx context.Context, w TxWriter) error {
			appt, err := w.LockAppointment(ctx, a.ID)
			if err != nil {
				return err
			}
			if appt.Status != model.StatusUpcoming || appt.ReminderSentAt != nil {
				return nil
			}
			if err := w.MarkReminderSent(ctx, appt.ID); err != nil {
				return err
			}
			evt, err := newAppointmentEvent(EventReminder, appt, s.artistName(ctx, appt.ArtistID), now)
			if err != nil {
				return err
			}
			sent = true
			return w.Enqueue(ctx, evt)
		})
		if err != nil {
			s.logger.Error("reminder failed", "appointment_id", a.ID, "err", err)
			continue
		}
		if sent {
			n++
		}
	}
	s.metrics.Swept("remind", n)
	return n, nil
}

func (s *Service) parseStart(date, clock string) (time.Time, error) {
	day, err := s.hours.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	c, err := scheduling.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return c.On(day, s.hours.Location), nil
}

func (s *Service) checkSlot(start time.Time, d time.Duration) error {
	if !s.hours.OnGrid(start, d) {
		return fmt.Errorf("%w: %s is not a bookable start for a %s service", ErrInvalidRequest, s.hours.Label(start), d)
	}
	return nil
}

func (s *Service) artistName(ctx context.Context, id string) string {
	roster, err := s.roster.Active(ctx)
	if err != nil {
		return ""
	}
	if a, ok := findArtist(roster, id); ok {
		return a.DisplayName()
	}
	return ""
}

func validateContact(req *BookRequest) error {
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	if req.ClientID == "" {
		req.ClientID = model.GuestClientID
	}
	if req.ClientName == "" {
		return fmt.Errorf("%w: client name is required", ErrInvalidRequest)
	}
	if req.ClientID == model.GuestClientID && req.ClientEmail == "" && req.ClientPhone == "" {
		return fmt.Errorf("%w: guests must leave an email or phone number", ErrInvalidRequest)
	}
	return nil
}

func authorize(actor auth.Identity, appt model.Appointment, to model.Status) error {
	switch actor.Role {
	case RoleSystem, auth.RoleAdmin:
		return nil
	case auth.RoleArtist:
		if appt.ArtistID == actor.UserID {
			return nil
		}
	case auth.RoleClient:
		if actor.UserID != "" && appt.ClientID == actor.UserID && to == model.StatusCancelled {
			return nil
		}
	}
	return ErrForbidden
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, catalog.ErrUnknownService), errors.Is(err, ErrUnknownArtist):
		return "rejected"
	case errors.Is(err, scheduling.ErrRepositoryTimeout):
		return "timeout"
	}
	return "error"
}
