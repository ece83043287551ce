package scheduling

import (
	"errors"
	"fmt"
	"time"
)

// Clock is a wall-clock time of day in the studio's timezone.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// On returns the instant of c on the calendar date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Hours describes the bookable window of a studio day and the slot grid.
type Hours struct {
	Open     Clock
	Close    Clock
	Step     time.Duration
	Location *time.Location
}

// DefaultHours is 10:00-20:00 on a 30 minute grid.
func DefaultHours(loc *time.Location) Hours {
	if loc == nil {
		loc = time.UTC
	}
	return Hours{
		Open:     Clock{Hour: 10},
		Close:    Clock{Hour: 20},
		Step:     30 * time.Minute,
		Location: loc,
	}
}

// Validate rejects windows that wrap past midnight. Day-keyed appointment
// lookups assume every appointment starts and ends on the same calendar day.
func (h Hours) Validate() error {
	if h.Location == nil {
		return errors.New("hours: location is required")
	}
	if h.Step <= 0 {
		return errors.New("hours: step must be positive")
	}
	if h.Open.Hour < 0 || h.Open.Hour > 23 || h.Close.Hour < 0 || h.Close.Hour > 23 {
		return errors.New("hours: hour out of range")
	}
	if h.Close.minutes() <= h.Open.minutes() {
		return fmt.Errorf("hours: close %s must be after open %s on the same day", h.Close, h.Open)
	}
	return nil
}

// Length is the span between open and close.
func (h Hours) Length() time.Duration {
	return time.Duration(h.Close.minutes()-h.Open.minutes()) * time.Minute
}

// Window returns the opening and closing instants for the calendar date of day.
// The year/month/day fields of day are used as-is, whatever its location.
func (h Hours) Window(day time.Time) (open, close time.Time) {
	return h.Open.On(day, h.Location), h.Close.On(day, h.Location)
}

// DayBounds returns [startOfDay, endOfDay] for the studio-local day that
// contains instant t. Both ends are inclusive.
func (h Hours) DayBounds(t time.Time) (start, end time.Time) {
	local := t.In(h.Location)
	y, m, d := local.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, h.Location)
	end = time.Date(y, m, d+1, 0, 0, 0, 0, h.Location).Add(-time.Nanosecond)
	return start, end
}

// Date returns midnight of the given calendar date in the studio timezone.
func (h Hours) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, h.Location)
}

// ParseDate parses "YYYY-MM-DD" as a studio-local calendar date.
func (h Hours) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, h.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// Label renders a slot start as HH:mm in studio time.
func (h Hours) Label(t time.Time) string {
	return t.In(h.Location).Format("15:04")
}

// OnGrid reports whether a booking [start, start+duration) starts on a grid
// point and fits before closing.
func (h Hours) OnGrid(start time.Time, duration time.Duration) bool {
	open, close := h.Window(start.In(h.Location))
	if start.Before(open) || start.Add(duration).After(close) {
		return false
	}
	return start.Sub(open)%h.Step == 0
}
