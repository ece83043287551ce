package storage

import (
	"context"

	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
	"github.com/jackc/pgx/v5"
)

// UnitOfWork runs booking writes and their outbox events in one pgx transaction.
type UnitOfWork struct {
	pool   *db.Pool
	appts  *AppointmentRepository
	outbox *outbox.Repository
}

func NewUnitOfWork(pool *db.Pool, appts *AppointmentRepository, ob *outbox.Repository) *UnitOfWork {
	return &UnitOfWork{pool: pool, appts: appts, outbox: ob}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, w booking.TxWriter) error) error {
	return u.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txWriter{tx: tx, appts: u.appts, outbox: u.outbox})
	})
}

type txWriter struct {
	tx     pgx.Tx
	appts  *AppointmentRepository
	outbox *outbox.Repository
}

func (w *txWriter) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	err := w.appts.createTx(ctx, w.tx, appt)
	if IsConflict(err) {
		return scheduling.ErrSlotConflict
	}
	return err
}

func (w *txWriter) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := w.appts.getForUpdateTx(ctx, w.tx, id)
	if IsNotFound(err) || IsInvalidInput(err) {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, err
}

func (w *txWriter) UpdateStatus(ctx context.Context, id string, to model.Status, reason string) (model.Appointment, error) {
	a, err := w.appts.updateStatusTx(ctx, w.tx, id, to, reason)
	if IsNotFound(err) {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, err
}

func (w *txWriter) MarkReminderSent(ctx context.Context, id string) error {
	return w.appts.markReminderSentTx(ctx, w.tx, id)
}

func (w *txWriter) Enqueue(ctx context.Context, evt outbox.Event) error {
	return w.outbox.Insert(ctx, w.tx, evt)
}
