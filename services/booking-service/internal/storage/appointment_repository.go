package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id::text, artist_id::text, client_id, client_name, COALESCE(client_email, ''), COALESCE(client_phone, ''),
	service_id, type, start_time, end_time, status, notes, COALESCE(deposit_session_id, ''),
	COALESCE(cancel_reason, ''), reminder_sent_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ArtistID,
		&a.ClientID,
		&a.ClientName,
		&a.ClientEmail,
		&a.ClientPhone,
		&a.ServiceID,
		&a.Type,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.Notes,
		&a.DepositSessionID,
		&a.CancelReason,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// QueryAppointmentsByDateRange returns appointments of every status whose
// start_time is within [start, end]. Status filtering is left to the caller.
func (r *AppointmentRepository) QueryAppointmentsByDateRange(ctx context.Context, start, end time.Time, artistID string) ([]model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE start_time >= $1 AND start_time <= $2`
	args := []any{start, end}
	if artistID != "" {
		query += ` AND artist_id = $3`
		args = append(args, artistID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if IsNotFound(err) || IsInvalidInput(err) {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, err
}

func (r *AppointmentRepository) List(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.ArtistID != "" {
		add("artist_id = $%d", f.ArtistID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY start_time ASC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) AttachDepositSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET deposit_session_id = $2, updated_at = now()
		WHERE id = $1
	`, id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) FinishedUpcoming(ctx context.Context, endedBefore time.Time, limit int) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'upcoming' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
	`, endedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'upcoming'
			AND reminder_sent_at IS NULL
			AND start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) createTx(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(artist_id, client_id, client_name, client_email, client_phone, service_id, type,
			 start_time, end_time, status, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		RETURNING id::text, created_at, updated_at
	`, a.ArtistID, a.ClientID, a.ClientName, a.ClientEmail, a.ClientPhone, a.ServiceID, a.Type,
		a.StartTime, a.EndTime, string(a.Status), a.Notes).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AppointmentRepository) getForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *AppointmentRepository) updateStatusTx(ctx context.Context, tx pgx.Tx, id string, to model.Status, reason string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancel_reason = COALESCE(NULLIF($3, ''), cancel_reason),
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(to), reason))
}

func (r *AppointmentRepository) markReminderSentTx(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = now(), updated_at = now()
		WHERE id = $1
	`, id)
	return err
}
