package storage

import (
	"context"
	"errors"
	"time"

	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/libs/outbox"
	"github.com/inkhouse/inkbook/services/auth-service/internal/audit"
	"github.com/jackc/pgx/v5"
)

const (
	AggregateUser       = "user"
	EventUserRegistered = "auth.user.registered.v1"
)

var ErrEmailTaken = errors.New("email already registered")

// UserRegistered is the auth.user.registered.v1 payload. booking-service
// turns artist registrations into roster entries.
type UserRegistered struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Registrar creates a user, its audit row and its outbox event in one
// transaction.
type Registrar struct {
	pool   *db.Pool
	users  *UserRepository
	audit  *audit.Repository
	outbox *outbox.Repository
}

func NewRegistrar(pool *db.Pool, users *UserRepository, auditRepo *audit.Repository, outboxRepo *outbox.Repository) *Registrar {
	return &Registrar{pool: pool, users: users, audit: auditRepo, outbox: outboxRepo}
}

func (r *Registrar) Register(ctx context.Context, user *User, actorID, auditEvent string) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := r.users.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		if err := r.audit.RecordTx(ctx, tx, auditEvent, actorID, map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
			"role":    user.Role,
		}); err != nil {
			return err
		}
		evt, err := outbox.NewEvent(AggregateUser, user.ID, EventUserRegistered, UserRegistered{
			UserID:     user.ID,
			Email:      user.Email,
			Role:       user.Role,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			OccurredAt: user.CreatedAt.UTC(),
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}
