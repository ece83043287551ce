package model

import (
	"strings"
	"time"
)

// Artist is a user with the artist role as seen by the booking side.
// Position orders the roster; lower positions are offered first.
type Artist struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Active    bool
	Position  int
	CreatedAt time.Time
}

func (a Artist) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
