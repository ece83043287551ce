package booking

import (
	"context"
	"errors"
	"time"

	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotUnavailable   = errors.New("slot no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("not allowed to change this appointment")
	ErrUnknownArtist     = errors.New("unknown or inactive artist")
	ErrInvalidRequest    = errors.New("invalid booking request")
)

// ListFilter narrows appointment listings. Zero fields do not filter.
type ListFilter struct {
	ClientID string
	ArtistID string
	Status   model.Status
	From     time.Time
	To       time.Time
	Limit    int
}

// Store is the read side of the appointment table plus single-row updates
// that do not emit events.
type Store interface {
	scheduling.AppointmentQuerier
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	AttachDepositSession(ctx context.Context, id, sessionID string) error
	FinishedUpcoming(ctx context.Context, endedBefore time.Time, limit int) ([]model.Appointment, error)
	StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Appointment, error)
	DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error)
}

// TxWriter writes appointment changes and their events atomically.
type TxWriter interface {
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	LockAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, to model.Status, reason string) (model.Appointment, error)
	MarkReminderSent(ctx context.Context, id string) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}

// UnitOfWork runs fn in one transaction; nothing fn wrote survives an error.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, w TxWriter) error) error
}

// Roster provides the ordered list of bookable artists.
type Roster interface {
	Active(ctx context.Context) ([]model.Artist, error)
}
