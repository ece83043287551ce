package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inkhouse/inkbook/libs/db"
	"github.com/jackc/pgx/v5"
)

// Why a refresh token stopped working. Presenting a token revoked as
// RevokedRotated means a copy of it leaked.
const (
	RevokedRotated = "rotated"
	RevokedLogout  = "logout"
	RevokedReuse   = "reuse_detected"
)

type RefreshToken struct {
	ID            string
	UserID        string
	Hash          string
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason string
}

// Usable reports whether the token may still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Replayed reports whether the token was already rotated away.
func (t RefreshToken) Replayed() bool {
	return t.RevokedAt != nil && t.RevokedReason == RevokedRotated
}

// RefreshRepository keeps only the SHA-256 of each token.
type RefreshRepository struct {
	pool *db.Pool
}

func NewRefreshRepository(pool *db.Pool) *RefreshRepository {
	return &RefreshRepository{pool: pool}
}

func (r *RefreshRepository) Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id, userID, HashToken(rawToken), expiresAt); err != nil {
		return "", err
	}
	return id, nil
}

func (r *RefreshRepository) GetByHash(ctx context.Context, hash string) (RefreshToken, error) {
	var t RefreshToken
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, token_hash, expires_at, revoked_at, COALESCE(revoked_reason, '')
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash).Scan(&t.ID, &t.UserID, &t.Hash, &t.ExpiresAt, &t.RevokedAt, &t.RevokedReason)
	return t, err
}

// Revoke marks one token revoked. It reports false when the token was
// already revoked, so only one of two concurrent rotations wins.
func (r *RefreshRepository) Revoke(ctx context.Context, id, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), revoked_reason = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAll ends every live session of userID.
func (r *RefreshRepository) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
