package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the booking service as seen by the background jobs.
type Sweeper interface {
	CompleteFinished(ctx context.Context) (int, error)
	ExpireStalePending(ctx context.Context) (int, error)
	SendDueReminders(ctx context.Context) (int, error)
}

// Config holds cron specs ("@every 1m" or five-field expressions). An empty
// spec disables that job.
type Config struct {
	CompleteSpec string
	ExpireSpec   string
	ReminderSpec string
	Timeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		CompleteSpec: "@every 1m",
		ExpireSpec:   "@every 1m",
		ReminderSpec: "@every 5m",
		Timeout:      30 * time.Second,
	}
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration
	base    context.Context
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(sweeper Sweeper, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		logger:  logger,
		timeout: cfg.Timeout,
		base:    context.Background(),
	}
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"complete", cfg.CompleteSpec, sweeper.CompleteFinished},
		{"expire", cfg.ExpireSpec, sweeper.ExpireStalePending},
		{"remind", cfg.ReminderSpec, sweeper.SendDueReminders},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.job(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done and running jobs finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
	s.logger.Info("booking jobs started", "entries", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("booking jobs stopped")
}

func (s *Scheduler) job(name string, run func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.base, s.timeout)
		defer cancel()
		start := time.Now()
		n, err := run(ctx)
		if err != nil {
			s.logger.Error("booking job failed", "job", name, "err", err)
			return
		}
		if n > 0 {
			s.logger.Info("booking job done", "job", name, "changed", n, "duration", time.Since(start))
		}
	}
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
