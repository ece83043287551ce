package storage

import (
	"context"

	"github.com/inkhouse/inkbook/libs/db"
)

// PaymentEventRepository deduplicates payment provider webhooks.
type PaymentEventRepository struct {
	pool *db.Pool
}

func NewPaymentEventRepository(pool *db.Pool) *PaymentEventRepository {
	return &PaymentEventRepository{pool: pool}
}

func (r *PaymentEventRepository) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_events WHERE provider = $1 AND event_id = $2)
	`, provider, eventID).Scan(&seen)
	return seen, err
}

// Record returns false when the event was already stored.
func (r *PaymentEventRepository) Record(ctx context.Context, provider, eventID, eventType, appointmentID string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_events (provider, event_id, event_type, appointment_id)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid)
	`, provider, eventID, eventType, appointmentID)
	if err == nil {
		return true, nil
	}
	if IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
