package scheduling

import (
	"context"
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

// AppointmentQuerier is the appointment store as the scheduling code sees it.
type AppointmentQuerier interface {
	// QueryAppointmentsByDateRange returns appointments of every status whose
	// start time lies in [startInclusive, endInclusive]. An empty artistID
	// means all artists.
	QueryAppointmentsByDateRange(ctx context.Context, startInclusive, endInclusive time.Time, artistID string) ([]model.Appointment, error)
}

// Resolver picks an artist for "any artist" bookings.
type Resolver struct {
	repo  AppointmentQuerier
	hours Hours
}

func NewResolver(repo AppointmentQuerier, hours Hours) *Resolver {
	return &Resolver{repo: repo, hours: hours}
}

// AssignArtist returns the first roster artist, in roster order, with no
// active appointment overlapping [start, end). It returns nil when every
// artist is busy; that is a normal outcome, not an error.
//
// Appointments are loaded for the studio day containing start, keyed on their
// start time. Bookings never cross midnight (Hours.Validate), so nothing that
// could overlap is missed.
//
// The result is only a snapshot: nothing stops another request from booking
// the same artist before the caller writes its appointment.
func (r *Resolver) AssignArtist(ctx context.Context, start, end time.Time, roster []model.Artist) (*model.Artist, error) {
	appts, err := r.dayAppointments(ctx, start)
	if err != nil {
		return nil, err
	}
	return FirstFree(start, end, roster, appts), nil
}

// FreeArtists returns every roster artist free for [start, end), in roster order.
func (r *Resolver) FreeArtists(ctx context.Context, start, end time.Time, roster []model.Artist) ([]model.Artist, error) {
	appts, err := r.dayAppointments(ctx, start)
	if err != nil {
		return nil, err
	}
	busy := indexActive(appts)
	var free []model.Artist
	for _, a := range roster {
		if busy.free(a.ID, start, end) {
			free = append(free, a)
		}
	}
	return free, nil
}

func (r *Resolver) dayAppointments(ctx context.Context, start time.Time) ([]model.Appointment, error) {
	dayStart, dayEnd := r.hours.DayBounds(start)
	appts, err := r.repo.QueryAppointmentsByDateRange(ctx, dayStart, dayEnd, "")
	if err != nil {
		return nil, classifyQueryError(err)
	}
	return appts, nil
}

// FirstFree is the pure part of AssignArtist.
func FirstFree(start, end time.Time, roster []model.Artist, appts []model.Appointment) *model.Artist {
	busy := indexActive(appts)
	for i := range roster {
		if busy.free(roster[i].ID, start, end) {
			a := roster[i]
			return &a
		}
	}
	return nil
}
