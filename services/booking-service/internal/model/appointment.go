package model

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUpcoming  Status = "upcoming"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDeclined  Status = "declined"
)

// GuestClientID marks appointments booked without an account.
const GuestClientID = "guest"

var ErrUnknownStatus = errors.New("unknown appointment status")

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusUpcoming, StatusCompleted, StatusCancelled, StatusDeclined:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// IsActive reports whether the appointment blocks its artist's time.
// Only pending and upcoming appointments take part in conflict checks.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusUpcoming
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeclined
}

// CanTransitionTo encodes the appointment lifecycle:
//
//	pending  -> upcoming | cancelled | declined
//	upcoming -> completed | cancelled
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusUpcoming || to == StatusCancelled || to == StatusDeclined
	case StatusUpcoming:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

type Appointment struct {
	ID               string
	ArtistID         string
	ClientID         string
	ClientName       string
	ClientEmail      string
	ClientPhone      string
	ServiceID        string
	Type             string
	StartTime        time.Time
	EndTime          time.Time
	Status           Status
	Notes            string
	DepositSessionID string
	CancelReason     string
	ReminderSentAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

func (a Appointment) IsGuest() bool {
	return a.ClientID == "" || a.ClientID == GuestClientID
}
