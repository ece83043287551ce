package storage

import (
	"context"
	"errors"

	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

var ErrArtistNotFound = errors.New("artist not found")

type ArtistRepository struct {
	pool *db.Pool
}

func NewArtistRepository(pool *db.Pool) *ArtistRepository {
	return &ArtistRepository{pool: pool}
}

// ArtistPatch carries the admin-editable artist fields. Nil fields are kept.
type ArtistPatch struct {
	Active   *bool
	Position *int
}

const artistColumns = `id::text, first_name, last_name, email, active, roster_position, created_at`

func scanArtist(row pgx.Row) (model.Artist, error) {
	var a model.Artist
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Active, &a.Position, &a.CreatedAt)
	return a, err
}

// UpsertFromUser creates the artist row for a registered artist user.
// New artists are appended to the end of the roster; existing rows only
// get their name and email refreshed.
func (r *ArtistRepository) UpsertFromUser(ctx context.Context, a model.Artist) (model.Artist, error) {
	return scanArtist(r.pool.QueryRow(ctx, `
		INSERT INTO artists (id, first_name, last_name, email, active, roster_position)
		VALUES ($1, $2, $3, $4, true,
			(SELECT COALESCE(MAX(roster_position), 0) + 1 FROM artists))
		ON CONFLICT (id)
		DO UPDATE SET first_name = EXCLUDED.first_name,
		              last_name = EXCLUDED.last_name,
		              email = EXCLUDED.email,
		              updated_at = now()
		RETURNING `+artistColumns,
		a.ID, a.FirstName, a.LastName, a.Email))
}

// List returns artists in roster order.
func (r *ArtistRepository) List(ctx context.Context, activeOnly bool) ([]model.Artist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+artistColumns+`
		FROM artists
		WHERE ($1::boolean = false OR active)
		ORDER BY roster_position ASC, created_at ASC, id ASC
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ArtistRepository) Get(ctx context.Context, id string) (model.Artist, error) {
	a, err := scanArtist(r.pool.QueryRow(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = $1`, id))
	if IsNotFound(err) || IsInvalidInput(err) {
		return model.Artist{}, ErrArtistNotFound
	}
	return a, err
}

func (r *ArtistRepository) Update(ctx context.Context, id string, patch ArtistPatch) (model.Artist, error) {
	a, err := scanArtist(r.pool.QueryRow(ctx, `
		UPDATE artists
		SET active = COALESCE($2, active),
			roster_position = COALESCE($3, roster_position),
			updated_at = now()
		WHERE id = $1
		RETURNING `+artistColumns, id, patch.Active, patch.Position))
	if IsNotFound(err) || IsInvalidInput(err) {
		return model.Artist{}, ErrArtistNotFound
	}
	return a, err
}
