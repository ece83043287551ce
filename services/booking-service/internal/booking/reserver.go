package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

// EventFunc builds the outbox event for an appointment once its id and
// artist are known.
type EventFunc func(appt model.Appointment, artist model.Artist) (outbox.Event, error)

// Reservation is an appointment waiting for an artist and a row.
type Reservation struct {
	Appointment model.Appointment
	Choice      scheduling.ArtistChoice
	Roster      []model.Artist
	Event       EventFunc
}

// Reserver turns a Reservation into a stored appointment. It returns
// ErrSlotUnavailable when no allowed artist can take the slot.
type Reserver interface {
	Reserve(ctx context.Context, r Reservation) (model.Appointment, model.Artist, error)
}

const (
	ConsistencyOptimistic = "optimistic"
	ConsistencyExclusive  = "exclusive"
)

// NewReserver picks the implementation for a BOOKING_CONSISTENCY value.
func NewReserver(mode string, uow UnitOfWork, resolver *scheduling.Resolver) (Reserver, error) {
	switch mode {
	case "", ConsistencyOptimistic:
		return &OptimisticReserver{uow: uow, resolver: resolver}, nil
	case ConsistencyExclusive:
		return &ExclusiveReserver{uow: uow, resolver: resolver}, nil
	}
	return nil, fmt.Errorf("unknown booking consistency %q", mode)
}

// OptimisticReserver reads availability and then writes, with nothing in
// between. Two concurrent requests for the same free slot can both succeed.
type OptimisticReserver struct {
	uow      UnitOfWork
	resolver *scheduling.Resolver
}

func NewOptimisticReserver(uow UnitOfWork, resolver *scheduling.Resolver) *OptimisticReserver {
	return &OptimisticReserver{uow: uow, resolver: resolver}
}

func (o *OptimisticReserver) Reserve(ctx context.Context, r Reservation) (model.Appointment, model.Artist, error) {
	roster := r.Roster
	switch c := r.Choice.(type) {
	case scheduling.SpecificArtist:
		a, ok := findArtist(r.Roster, c.ID)
		if !ok {
			return model.Appointment{}, model.Artist{}, ErrUnknownArtist
		}
		roster = []model.Artist{a}
	case scheduling.AnyArtist:
	default:
		return model.Appointment{}, model.Artist{}, ErrInvalidRequest
	}

	artist, err := o.resolver.AssignArtist(ctx, r.Appointment.StartTime, r.Appointment.EndTime, roster)
	if err != nil {
		return model.Appointment{}, model.Artist{}, err
	}
	if artist == nil {
		return model.Appointment{}, model.Artist{}, ErrSlotUnavailable
	}
	appt, err := write(ctx, o.uow, r, *artist)
	return appt, *artist, err
}

// ExclusiveReserver relies on the appointments_no_active_overlap exclusion
// constraint. A rejected insert for AnyArtist moves on to the next free
// artist in roster order.
type ExclusiveReserver struct {
	uow      UnitOfWork
	resolver *scheduling.Resolver
}

func NewExclusiveReserver(uow UnitOfWork, resolver *scheduling.Resolver) *ExclusiveReserver {
	return &ExclusiveReserver{uow: uow, resolver: resolver}
}

func (e *ExclusiveReserver) Reserve(ctx context.Context, r Reservation) (model.Appointment, model.Artist, error) {
	var candidates []model.Artist
	switch c := r.Choice.(type) {
	case scheduling.SpecificArtist:
		a, ok := findArtist(r.Roster, c.ID)
		if !ok {
			return model.Appointment{}, model.Artist{}, ErrUnknownArtist
		}
		candidates = []model.Artist{a}
	case scheduling.AnyArtist:
		free, err := e.resolver.FreeArtists(ctx, r.Appointment.StartTime, r.Appointment.EndTime, r.Roster)
		if err != nil {
			return model.Appointment{}, model.Artist{}, err
		}
		candidates = free
	default:
		return model.Appointment{}, model.Artist{}, ErrInvalidRequest
	}

	for _, artist := range candidates {
		appt, err := write(ctx, e.uow, r, artist)
		if errors.Is(err, scheduling.ErrSlotConflict) {
			continue
		}
		return appt, artist, err
	}
	return model.Appointment{}, model.Artist{}, ErrSlotUnavailable
}

func write(ctx context.Context, uow UnitOfWork, r Reservation, artist model.Artist) (model.Appointment, error) {
	appt := r.Appointment
	appt.ArtistID = artist.ID
	err := uow.Do(ctx, func(ctx context.Context, w TxWriter) error {
		if err := w.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		if r.Event == nil {
			return nil
		}
		evt, err := r.Event(appt, artist)
		if err != nil {
			return err
		}
		return w.Enqueue(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func findArtist(roster []model.Artist, id string) (model.Artist, bool) {
	for _, a := range roster {
		if a.ID == id {
			return a, true
		}
	}
	return model.Artist{}, false
}
