package booking

import (
	"time"

	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

const AggregateAppointment = "appointment"

// Event types double as Kafka topic names.
const (
	EventRequested = "booking.appointment.requested.v1"
	EventConfirmed = "booking.appointment.confirmed.v1"
	EventCancelled = "booking.appointment.cancelled.v1"
	EventDeclined  = "booking.appointment.declined.v1"
	EventCompleted = "booking.appointment.completed.v1"
	EventReminder  = "booking.appointment.reminder.v1"
)

// LifecycleTopics lists every topic booking-service publishes to.
func LifecycleTopics() []string {
	return []string{EventRequested, EventConfirmed, EventCancelled, EventDeclined, EventCompleted, EventReminder}
}

// AppointmentEvent is the payload of every booking.appointment.* event.
type AppointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	ArtistID      string    `json:"artist_id"`
	ArtistName    string    `json:"artist_name,omitempty"`
	ClientID      string    `json:"client_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email,omitempty"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	ServiceID     string    `json:"service_id"`
	ServiceLabel  string    `json:"service_label"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func eventForStatus(s model.Status) string {
	switch s {
	case model.StatusPending:
		return EventRequested
	case model.StatusUpcoming:
		return EventConfirmed
	case model.StatusCancelled:
		return EventCancelled
	case model.StatusDeclined:
		return EventDeclined
	case model.StatusCompleted:
		return EventCompleted
	}
	return ""
}

func newAppointmentEvent(eventType string, a model.Appointment, artistName string, now time.Time) (outbox.Event, error) {
	return outbox.NewEvent(AggregateAppointment, a.ID, eventType, AppointmentEvent{
		AppointmentID: a.ID,
		ArtistID:      a.ArtistID,
		ArtistName:    artistName,
		ClientID:      a.ClientID,
		ClientName:    a.ClientName,
		ClientEmail:   a.ClientEmail,
		ClientPhone:   a.ClientPhone,
		ServiceID:     a.ServiceID,
		ServiceLabel:  a.Type,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Status:        string(a.Status),
		Reason:        a.CancelReason,
		OccurredAt:    now.UTC(),
	})
}
