package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeInvalidText        = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsConflict reports an exclusion-constraint rejection, i.e. an overlapping
// active appointment for the same artist.
func IsConflict(err error) bool {
	return pgCode(err) == codeExclusionViolation
}

// IsInvalidInput reports malformed input such as a non-uuid id.
func IsInvalidInput(err error) bool {
	return pgCode(err) == codeInvalidText
}
