package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

var (
	day    = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	hours  = DefaultHours(time.UTC)
	artA   = model.Artist{ID: "A", FirstName: "Ada"}
	artB   = model.Artist{ID: "B", FirstName: "Bo"}
	roster = []model.Artist{artA, artB}
)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func appt(artist string, h1, m1, h2, m2 int, status model.Status) model.Appointment {
	return model.Appointment{ArtistID: artist, StartTime: at(h1, m1), EndTime: at(h2, m2), Status: status}
}

func contains(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

type memRepo struct {
	appts []model.Appointment
	err   error
	calls int
}

func (m *memRepo) QueryAppointmentsByDateRange(_ context.Context, start, end time.Time, artistID string) ([]model.Appointment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Appointment
	for _, a := range m.appts {
		if a.StartTime.Before(start) || a.StartTime.After(end) {
			continue
		}
		if artistID != "" && a.ArtistID != artistID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func TestOverlapBoundaryLaw(t *testing.T) {
	cases := []struct {
		name           string
		aS, aE, bS, bE time.Time
		want           bool
	}{
		{"touching", at(10, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"touching reversed", at(11, 0), at(12, 0), at(10, 0), at(11, 0), false},
		{"partial", at(10, 0), at(11, 0), at(10, 30), at(11, 30), true},
		{"contained", at(10, 0), at(12, 0), at(10, 30), at(11, 0), true},
		{"identical", at(10, 0), at(11, 0), at(10, 0), at(11, 0), true},
		{"disjoint", at(10, 0), at(11, 0), at(13, 0), at(14, 0), false},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.aS, tc.aE, tc.bS, tc.bE); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSlotGridAlignment(t *testing.T) {
	slots := ComputeAvailability(hours, day, 60*time.Minute, SpecificArtist{ID: "A"}, nil, roster)
	if len(slots) != 19 {
		t.Fatalf("expected 19 hourly slots (10:00..19:00 every 30m), got %d: %v", len(slots), slots)
	}
	if slots[0] != "10:00" || slots[len(slots)-1] != "19:00" {
		t.Fatalf("unexpected first/last slot: %v", slots)
	}
	if contains(slots, "19:30") {
		t.Fatalf("19:30 must not be offered for a 60 minute service")
	}

	long := ComputeAvailability(hours, day, 240*time.Minute, SpecificArtist{ID: "A"}, nil, roster)
	if long[len(long)-1] != "16:00" {
		t.Fatalf("expected last 240 minute slot at 16:00, got %v", long)
	}
	if contains(long, "16:30") {
		t.Fatalf("16:30 must not be offered for a 240 minute service")
	}
}

func TestSlotsAreAscendingAndZeroPadded(t *testing.T) {
	h := hours
	h.Open = Clock{Hour: 9}
	slots := ComputeAvailability(h, day, 30*time.Minute, AnyArtist{}, nil, roster)
	if slots[0] != "09:00" || slots[1] != "09:30" {
		t.Fatalf("expected zero padded labels, got %v", slots[:2])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("slots not ascending at %d: %v", i, slots)
		}
	}
}

func TestAnyArtistAvailabilityScenario(t *testing.T) {
	appts := []model.Appointment{appt("A", 10, 0, 11, 0, model.StatusUpcoming)}

	anySlots := ComputeAvailability(hours, day, 60*time.Minute, AnyArtist{}, appts, roster)
	if !contains(anySlots, "10:00") || !contains(anySlots, "11:00") {
		t.Fatalf("any-artist availability must include 10:00 and 11:00, got %v", anySlots)
	}

	aSlots := ComputeAvailability(hours, day, 60*time.Minute, SpecificArtist{ID: "A"}, appts, roster)
	if contains(aSlots, "10:00") || contains(aSlots, "10:30") {
		t.Fatalf("A is busy 10:00-11:00, got %v", aSlots)
	}
	if !contains(aSlots, "11:00") {
		t.Fatalf("A is free from 11:00, got %v", aSlots)
	}
}

func TestInactiveAppointmentsDoNotBlock(t *testing.T) {
	for _, st := range []model.Status{model.StatusCancelled, model.StatusDeclined, model.StatusCompleted} {
		appts := []model.Appointment{appt("A", 10, 0, 20, 0, st)}

		slots := ComputeAvailability(hours, day, 60*time.Minute, SpecificArtist{ID: "A"}, appts, roster)
		if !contains(slots, "10:00") || len(slots) != 19 {
			t.Fatalf("%s appointment must not block availability, got %v", st, slots)
		}
		if got := FirstFree(at(10, 0), at(11, 0), []model.Artist{artA}, appts); got == nil || got.ID != "A" {
			t.Fatalf("%s appointment must not block assignment, got %v", st, got)
		}
	}
}

func TestEmptyRosterAndEmptyData(t *testing.T) {
	if slots := ComputeAvailability(hours, day, 60*time.Minute, AnyArtist{}, nil, nil); len(slots) != 0 || slots == nil {
		t.Fatalf("empty roster must yield an empty, non-nil sequence, got %#v", slots)
	}
	all := ComputeAvailability(hours, day, 30*time.Minute, AnyArtist{}, nil, roster)
	if len(all) != 20 {
		t.Fatalf("expected every 30 minute grid slot, got %d", len(all))
	}
	specific := ComputeAvailability(hours, day, 30*time.Minute, SpecificArtist{ID: "A"}, nil, nil)
	if len(specific) != 20 {
		t.Fatalf("specific artist does not need a roster, got %d", len(specific))
	}
}

func TestDurationLongerThanWindow(t *testing.T) {
	h := hours
	h.Close = Clock{Hour: 12}
	if slots := ComputeAvailability(h, day, 180*time.Minute, AnyArtist{}, nil, roster); len(slots) != 0 {
		t.Fatalf("expected no slots, got %v", slots)
	}
}

func TestRosterOrderDeterminism(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	r := NewResolver(repo, hours)

	got, err := r.AssignArtist(ctx, at(12, 0), at(13, 0), roster)
	if err != nil || got == nil || got.ID != "A" {
		t.Fatalf("both free: expected A, got %v err=%v", got, err)
	}

	repo.appts = []model.Appointment{appt("A", 11, 30, 12, 30, model.StatusPending)}
	got, err = r.AssignArtist(ctx, at(12, 0), at(13, 0), roster)
	if err != nil || got == nil || got.ID != "B" {
		t.Fatalf("A conflicted: expected B, got %v err=%v", got, err)
	}

	repo.appts = append(repo.appts, appt("B", 12, 30, 14, 0, model.StatusUpcoming))
	got, err = r.AssignArtist(ctx, at(12, 0), at(13, 0), roster)
	if err != nil || got != nil {
		t.Fatalf("both conflicted: expected nil, got %v err=%v", got, err)
	}

	reversed := []model.Artist{artB, artA}
	repo.appts = nil
	got, _ = r.AssignArtist(ctx, at(12, 0), at(13, 0), reversed)
	if got.ID != "B" {
		t.Fatalf("roster order must win, got %s", got.ID)
	}
}

func TestResolverNeverDoubleBooks(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	r := NewResolver(repo, hours)
	three := []model.Artist{artA, artB, {ID: "C"}}

	requests := [][2]time.Time{
		{at(10, 0), at(12, 0)},
		{at(11, 0), at(13, 0)},
		{at(11, 30), at(12, 30)},
		{at(12, 0), at(14, 0)},
		{at(10, 30), at(11, 0)},
		{at(13, 0), at(15, 0)},
		{at(11, 0), at(11, 30)},
	}
	for _, req := range requests {
		artist, err := r.AssignArtist(ctx, req[0], req[1], three)
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if artist == nil {
			continue
		}
		repo.appts = append(repo.appts, model.Appointment{ArtistID: artist.ID, StartTime: req[0], EndTime: req[1], Status: model.StatusUpcoming})
	}

	for i, a := range repo.appts {
		for j, b := range repo.appts {
			if i < j && a.ArtistID == b.ArtistID && Overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
				t.Fatalf("artist %s double booked: %v-%v and %v-%v", a.ArtistID, a.StartTime, a.EndTime, b.StartTime, b.EndTime)
			}
		}
	}
	if len(repo.appts) < 5 {
		t.Fatalf("expected most requests to be placed, got %d", len(repo.appts))
	}
}

func TestResolverQueriesTheStudioDayOfStart(t *testing.T) {
	loc := time.FixedZone("studio", -5*3600)
	h := DefaultHours(loc)
	start := time.Date(2026, 3, 14, 19, 0, 0, 0, loc)
	// Starts late on the 14th studio time, which is already the 15th in UTC.
	repo := &memRepo{appts: []model.Appointment{{ArtistID: "A", StartTime: start.Add(-30 * time.Minute), EndTime: start.Add(30 * time.Minute), Status: model.StatusUpcoming}}}

	got, err := NewResolver(repo, h).AssignArtist(context.Background(), start, start.Add(time.Hour), []model.Artist{artA})
	if err != nil || got != nil {
		t.Fatalf("expected the studio-day query to catch the conflict, got %v err=%v", got, err)
	}
}

type netTimeout struct{}

func (netTimeout) Error() string { return "i/o timeout" }
func (netTimeout) Timeout() bool { return true }

func TestCalculatorFailurePolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := &recordingObserver{}

	repo := &memRepo{err: errors.New("connection refused")}
	slots, err := NewCalculator(repo, hours, logger, obs).Availability(context.Background(), day, time.Hour, AnyArtist{}, roster)
	if err != nil || slots == nil || len(slots) != 0 {
		t.Fatalf("query failure must read as no availability, got %v err=%v", slots, err)
	}

	repo.err = context.DeadlineExceeded
	if _, err := NewCalculator(repo, hours, logger, obs).Availability(context.Background(), day, time.Hour, AnyArtist{}, roster); !errors.Is(err, ErrRepositoryTimeout) {
		t.Fatalf("expected ErrRepositoryTimeout, got %v", err)
	}
	repo.err = netTimeout{}
	if _, err := NewCalculator(repo, hours, logger, obs).Availability(context.Background(), day, time.Hour, AnyArtist{}, roster); !errors.Is(err, ErrRepositoryTimeout) {
		t.Fatalf("expected ErrRepositoryTimeout for net timeout, got %v", err)
	}
	if len(obs.ops) != 3 {
		t.Fatalf("expected every failure observed, got %v", obs.ops)
	}
}

func TestCalculatorValidatesAndShortCircuits(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &memRepo{appts: []model.Appointment{appt("B", 10, 0, 11, 0, model.StatusUpcoming)}}
	c := NewCalculator(repo, hours, logger, nil)

	if _, err := c.Availability(context.Background(), day, 0, AnyArtist{}, roster); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if slots, err := c.Availability(context.Background(), day, time.Hour, AnyArtist{}, nil); err != nil || len(slots) != 0 {
		t.Fatalf("empty roster: got %v err=%v", slots, err)
	}
	if repo.calls != 0 {
		t.Fatalf("no query expected for an empty roster")
	}

	slots, err := c.Availability(context.Background(), day, time.Hour, SpecificArtist{ID: "A"}, nil)
	if err != nil || !contains(slots, "10:00") {
		t.Fatalf("B's appointment must not affect A, got %v err=%v", slots, err)
	}
}

type recordingObserver struct{ ops []string }

func (o *recordingObserver) QueryFailed(op string, _ error) { o.ops = append(o.ops, op) }

func TestHoursValidateAndGrid(t *testing.T) {
	if err := DefaultHours(nil).Validate(); err != nil {
		t.Fatalf("default hours invalid: %v", err)
	}
	h := hours
	h.Close = Clock{Hour: 2}
	h.Open = Clock{Hour: 22}
	if err := h.Validate(); err == nil || !strings.Contains(err.Error(), "same day") {
		t.Fatalf("expected cross-midnight rejection, got %v", err)
	}

	if !hours.OnGrid(at(19, 0), time.Hour) {
		t.Fatal("19:00 for an hour is on the grid")
	}
	if hours.OnGrid(at(19, 30), time.Hour) || hours.OnGrid(at(10, 15), 30*time.Minute) || hours.OnGrid(at(9, 30), 30*time.Minute) {
		t.Fatal("off-grid or out-of-hours starts must be rejected")
	}
}

func TestChoiceFromID(t *testing.T) {
	if _, ok := ChoiceFromID("").(AnyArtist); !ok {
		t.Fatal("empty id means any artist")
	}
	if _, ok := ChoiceFromID("ANY").(AnyArtist); !ok {
		t.Fatal("\"any\" means any artist")
	}
	if c, ok := ChoiceFromID("A").(SpecificArtist); !ok || c.ID != "A" {
		t.Fatalf("unexpected choice %#v", c)
	}
}

func TestParseClockAndDayBounds(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil || c.String() != "09:30" {
		t.Fatalf("unexpected clock %v err=%v", c, err)
	}
	if _, err := ParseClock("9am"); err == nil {
		t.Fatal("expected parse error")
	}
	start, end := hours.DayBounds(at(15, 0))
	if !start.Equal(day) || !end.Equal(day.Add(24*time.Hour-time.Nanosecond)) {
		t.Fatalf("unexpected bounds %v %v", start, end)
	}
}
