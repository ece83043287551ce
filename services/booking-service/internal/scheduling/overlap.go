package scheduling

import (
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch (one ends exactly when the other starts) do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// busyIndex groups active appointments by artist.
type busyIndex map[string][]model.Appointment

func indexActive(appts []model.Appointment) busyIndex {
	idx := busyIndex{}
	for _, a := range appts {
		if !a.Status.IsActive() {
			continue
		}
		idx[a.ArtistID] = append(idx[a.ArtistID], a)
	}
	return idx
}

// free reports whether artistID has no active appointment overlapping [start, end).
func (b busyIndex) free(artistID string, start, end time.Time) bool {
	for _, a := range b[artistID] {
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return false
		}
	}
	return true
}
