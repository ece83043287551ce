package storage

import (
	"context"

	"github.com/inkhouse/inkbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one delivery attempt.
type Notification struct {
	AppointmentID string
	EventID       string
	EventType     string
	Channel       string
	Recipient     string
	Provider      string
	Subject       string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, event_id, event_type, channel, recipient, provider, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, n.AppointmentID, n.EventID, n.EventType, n.Channel, n.Recipient, n.Provider, n.Subject, n.Status, n.Error)
	return err
}
