package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/inkhouse/inkbook/libs/db"
	"github.com/jackc/pgx/v5"
)

const (
	EventLoginSucceeded = "auth.login.succeeded"
	EventLoginFailed    = "auth.login.failed"
	EventRegistered     = "auth.user.registered"
	EventArtistCreated  = "auth.artist.created"
	EventAdminBootstrap = "auth.admin.bootstrapped"
	EventRefreshReused  = "auth.refresh.reused"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertEvent = `
	INSERT INTO audit_events (event_type, actor_id, metadata)
	VALUES ($1, NULLIF($2, ''), $3)
`

func (r *Repository) Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertEvent, eventType, actorID, raw)
	return err
}

// RecordTx writes the event inside tx so it commits with the change it audits.
func (r *Repository) RecordTx(ctx context.Context, tx pgx.Tx, eventType string, actorID string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, insertEvent, eventType, actorID, raw)
	return err
}

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

// ListRecent returns the newest events first, optionally only one type.
func (r *Repository) ListRecent(ctx context.Context, eventType string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id, ''), metadata, created_at
		FROM audit_events
		WHERE $1 = '' OR event_type = $1
		ORDER BY id DESC
		LIMIT $2
	`, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		events = append(events, e)
	}
	return events, rows.Err()
}
