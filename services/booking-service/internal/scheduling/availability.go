package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

// ComputeAvailability lists the bookable slot labels (HH:mm, ascending) on the
// calendar date of day for a booking of the given duration.
//
// Slots start at opening time and advance by the grid step while
// start+duration still ends at or before closing. A slot is offered when at
// least one artist allowed by choice has no active appointment overlapping it.
// AnyArtist with an empty roster yields no slots. Past slots are not filtered.
func ComputeAvailability(h Hours, day time.Time, duration time.Duration, choice ArtistChoice, appts []model.Appointment, roster []model.Artist) []string {
	starts := AvailableStarts(h, day, duration, choice, appts, roster)
	labels := make([]string, 0, len(starts))
	for _, s := range starts {
		labels = append(labels, h.Label(s))
	}
	return labels
}

// AvailableStarts is ComputeAvailability before formatting.
func AvailableStarts(h Hours, day time.Time, duration time.Duration, choice ArtistChoice, appts []model.Appointment, roster []model.Artist) []time.Time {
	if duration <= 0 || h.Step <= 0 {
		return nil
	}
	ids := candidates(choice, roster)
	if len(ids) == 0 {
		return nil
	}
	busy := indexActive(appts)

	var starts []time.Time
	open, close := h.Window(day)
	for t := open; !t.Add(duration).After(close); t = t.Add(h.Step) {
		end := t.Add(duration)
		for _, id := range ids {
			if busy.free(id, t, end) {
				starts = append(starts, t)
				break
			}
		}
	}
	return starts
}

// Observer is told about repository failures that the calculator absorbs.
type Observer interface {
	QueryFailed(op string, err error)
}

// Calculator loads a day's appointments and computes availability from them.
type Calculator struct {
	repo     AppointmentQuerier
	hours    Hours
	logger   *slog.Logger
	observer Observer
}

func NewCalculator(repo AppointmentQuerier, hours Hours, logger *slog.Logger, observer Observer) *Calculator {
	return &Calculator{repo: repo, hours: hours, logger: logger, observer: observer}
}

func (c *Calculator) Hours() Hours {
	return c.hours
}

// Availability returns the slot labels for day. A failed query is logged and
// reported as no availability (an empty, non-nil slice); only a timeout is
// returned as an error, wrapped in ErrRepositoryTimeout.
func (c *Calculator) Availability(ctx context.Context, day time.Time, duration time.Duration, choice ArtistChoice, roster []model.Artist) ([]string, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if _, ok := choice.(AnyArtist); ok && len(roster) == 0 {
		return []string{}, nil
	}

	artistID := ""
	if s, ok := choice.(SpecificArtist); ok {
		artistID = s.ID
	}
	open, _ := c.hours.Window(day)
	dayStart, dayEnd := c.hours.DayBounds(open)

	appts, err := c.repo.QueryAppointmentsByDateRange(ctx, dayStart, dayEnd, artistID)
	if err != nil {
		err = classifyQueryError(err)
		if c.observer != nil {
			c.observer.QueryFailed("availability", err)
		}
		if errors.Is(err, ErrRepositoryTimeout) {
			c.logger.Warn("availability query timed out", "date", dayStart.Format("2006-01-02"), "err", err)
			return nil, err
		}
		c.logger.Error("availability query failed", "date", dayStart.Format("2006-01-02"), "artist_id", artistID, "err", err)
		return []string{}, nil
	}
	return ComputeAvailability(c.hours, day, duration, choice, appts, roster), nil
}
