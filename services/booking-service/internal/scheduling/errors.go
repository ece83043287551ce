package scheduling

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRepositoryTimeout means the appointment store did not answer in time.
	// It is kept apart from other query failures so callers can tell "we do
	// not know" from "nothing is free".
	ErrRepositoryTimeout = errors.New("appointment repository timed out")
	ErrInvalidDuration   = errors.New("duration must be positive")
	// ErrSlotConflict is returned by stores that enforce non-overlap
	// themselves when a write would double-book an artist.
	ErrSlotConflict = errors.New("artist already has an overlapping appointment")
)

type timeout interface {
	Timeout() bool
}

func classifyQueryError(err error) error {
	if err == nil {
		return nil
	}
	var t timeout
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &t) && t.Timeout()) {
		return fmt.Errorf("%w: %w", ErrRepositoryTimeout, err)
	}
	return err
}
