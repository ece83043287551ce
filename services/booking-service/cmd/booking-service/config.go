package main

import (
	"fmt"
	"time"

	"github.com/inkhouse/inkbook/libs/config"
	"github.com/inkhouse/inkbook/libs/db"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/jobs"
	"github.com/inkhouse/inkbook/services/booking-service/internal/payments"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

func loadHours() (scheduling.Hours, error) {
	loc, err := time.LoadLocation(config.String("SCHEDULE_TIMEZONE", "UTC"))
	if err != nil {
		return scheduling.Hours{}, fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	h := scheduling.DefaultHours(loc)
	if h.Open, err = scheduling.ParseClock(config.String("SCHEDULE_OPEN", h.Open.String())); err != nil {
		return scheduling.Hours{}, fmt.Errorf("SCHEDULE_OPEN: %w", err)
	}
	if h.Close, err = scheduling.ParseClock(config.String("SCHEDULE_CLOSE", h.Close.String())); err != nil {
		return scheduling.Hours{}, fmt.Errorf("SCHEDULE_CLOSE: %w", err)
	}
	if h.Step, err = config.Duration("SCHEDULE_STEP", h.Step); err != nil {
		return scheduling.Hours{}, err
	}
	return h, h.Validate()
}

func loadBookingConfig() (booking.Config, error) {
	cfg := booking.DefaultConfig()
	var err error
	if cfg.PendingTTL, err = config.Duration("PENDING_TTL", cfg.PendingTTL); err != nil {
		return cfg, err
	}
	if cfg.ReminderLead, err = config.Duration("REMINDER_LEAD", cfg.ReminderLead); err != nil {
		return cfg, err
	}
	if cfg.SweepBatch, err = config.Int("SWEEP_BATCH", cfg.SweepBatch); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadStripeConfig() (payments.Config, error) {
	cfg := payments.Config{
		SecretKey:     config.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:    config.String("STRIPE_SUCCESS_URL", ""),
		CancelURL:     config.String("STRIPE_CANCEL_URL", ""),
	}
	var err error
	if cfg.WebhookTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.SessionLifetime, err = config.Duration("STRIPE_SESSION_LIFETIME", time.Hour); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadJobsConfig() (jobs.Config, error) {
	cfg := jobs.DefaultConfig()
	cfg.CompleteSpec = config.String("JOB_COMPLETE_SPEC", cfg.CompleteSpec)
	cfg.ExpireSpec = config.String("JOB_EXPIRE_SPEC", cfg.ExpireSpec)
	cfg.ReminderSpec = config.String("JOB_REMINDER_SPEC", cfg.ReminderSpec)
	var err error
	cfg.Timeout, err = config.Duration("JOB_TIMEOUT", cfg.Timeout)
	return cfg, err
}

func loadPoolOptions() (db.PoolOptions, error) {
	opts := db.DefaultPoolOptions()
	maxConns, err := config.Int("DB_MAX_CONNS", int(opts.MaxConns))
	if err != nil {
		return opts, err
	}
	opts.MaxConns = int32(maxConns)
	return opts, nil
}
