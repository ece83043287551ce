package metrics

import (
	"errors"
	"fmt"

	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inkbook_booking"

// Metrics holds the booking-service collectors. A nil *Metrics records nothing.
type Metrics struct {
	availability    *prometheus.CounterVec
	slotsReturned   prometheus.Histogram
	bookings        *prometheus.CounterVec
	repoErrors      *prometheus.CounterVec
	sweeps          *prometheus.CounterVec
	outboxPublished prometheus.Counter
}

func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_requests_total",
			Help:      "Availability lookups by outcome.",
		}, []string{"outcome"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_slots",
			Help:      "Number of slots returned per availability lookup.",
			Buckets:   []float64{0, 1, 2, 4, 8, 12, 16, 20},
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		repoErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_errors_total",
			Help:      "Appointment query failures absorbed by the scheduler, by kind.",
		}, []string{"op", "kind"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_appointments_total",
			Help:      "Appointments changed by background sweeps.",
		}, []string{"job"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to Kafka.",
		}),
	}
	collectors := []prometheus.Collector{m.availability, m.slotsReturned, m.bookings, m.repoErrors, m.sweeps, m.outboxPublished}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register booking metric: %w", err)
		}
	}
	return m, nil
}

// MustNew panics when registration fails.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// AvailabilityServed records one availability lookup.
func (m *Metrics) AvailabilityServed(slots int, err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.availability.WithLabelValues("ok").Inc()
		m.slotsReturned.Observe(float64(slots))
	case errors.Is(err, scheduling.ErrRepositoryTimeout):
		m.availability.WithLabelValues("timeout").Inc()
	default:
		m.availability.WithLabelValues("error").Inc()
	}
}

// QueryFailed implements scheduling.Observer.
func (m *Metrics) QueryFailed(op string, err error) {
	if m == nil {
		return
	}
	kind := "error"
	if errors.Is(err, scheduling.ErrRepositoryTimeout) {
		kind = "timeout"
	}
	m.repoErrors.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) BookingResult(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Swept(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeps.WithLabelValues(job).Add(float64(n))
}

func (m *Metrics) OutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}
