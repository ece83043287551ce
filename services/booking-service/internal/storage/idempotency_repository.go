package storage

import (
	"context"
	"errors"

	"github.com/inkhouse/inkbook/libs/db"
)

var ErrIdempotencyInProgress = errors.New("request with this idempotency key is still in progress")

type IdempotencyRecord struct {
	Scope           string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Completed reports whether the original request finished and can be replayed.
func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode != 0
}

type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Claim reserves key within scope. It returns (rec, true) when a previous
// request already finished, and ErrIdempotencyInProgress while one is running.
func (r *IdempotencyRepository) Claim(ctx context.Context, scope, key string) (IdempotencyRecord, bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return IdempotencyRecord{Scope: scope, IdempotencyKey: key}, false, nil
	}

	var rec IdempotencyRecord
	var responseText string
	err = r.pool.QueryRow(ctx, `
		SELECT scope,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key).Scan(
		&rec.Scope,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	if !rec.Completed() {
		return rec, false, ErrIdempotencyInProgress
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, true, nil
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, scope, key, appointmentID string, statusCode int, response []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key, appointmentID, statusCode, response)
	return err
}

// Release drops an unfinished claim so the client can retry after a failure.
func (r *IdempotencyRepository) Release(ctx context.Context, scope, key string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2 AND status_code IS NULL
	`, scope, key)
	return err
}
