package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSweeper struct {
	complete, expire, remind int
	err                      error
	sawDeadline              bool
}

func (f *fakeSweeper) CompleteFinished(ctx context.Context) (int, error) {
	f.complete++
	_, f.sawDeadline = ctx.Deadline()
	return 1, f.err
}

func (f *fakeSweeper) ExpireStalePending(context.Context) (int, error) {
	f.expire++
	return 0, f.err
}

func (f *fakeSweeper) SendDueReminders(context.Context) (int, error) {
	f.remind++
	return 2, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSchedulesConfiguredJobs(t *testing.T) {
	s, err := New(&fakeSweeper{}, DefaultConfig(), discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n := len(s.cron.Entries()); n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}

	cfg := DefaultConfig()
	cfg.ReminderSpec = ""
	s, err = New(&fakeSweeper{}, cfg, discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Fatalf("empty spec should disable the job, got %d entries", n)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpireSpec = "every minute please"
	if _, err := New(&fakeSweeper{}, cfg, discard()); err == nil {
		t.Fatalf("expected invalid spec error")
	}
}

func TestJobRunsWithTimeout(t *testing.T) {
	sw := &fakeSweeper{}
	s, err := New(sw, Config{CompleteSpec: "@every 1h", Timeout: time.Second}, discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.job("complete", sw.CompleteFinished)()
	if sw.complete != 1 || !sw.sawDeadline {
		t.Fatalf("expected one bounded run, got %d deadline=%v", sw.complete, sw.sawDeadline)
	}

	sw.err = errors.New("db down")
	s.job("remind", sw.SendDueReminders)()
	if sw.remind != 1 {
		t.Fatalf("failing job should still run once, got %d", sw.remind)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := New(&fakeSweeper{}, DefaultConfig(), discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
