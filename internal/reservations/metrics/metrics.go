package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess     = "success"
	ResultLockHeld    = "lock_held"
	ResultOverlap     = "overlap"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
	ResultAcquired    = "acquired"
	ResultHeld        = "held"
)

// Metrics is the reservations service instrumentation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Bookings            *prometheus.CounterVec
	BookingDuration     prometheus.Histogram
	LockAcquisitions    *prometheus.CounterVec
	ProposalTransitions *prometheus.CounterVec
	SweepRuns           prometheus.Counter
	SweepExpired        prometheus.Counter
	Notifications       *prometheus.CounterVec
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func New() *Metrics {
	return &Metrics{
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_bookings_total",
			Help: "Booking attempts by result",
		}, []string{"result"}),
		BookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservations_booking_duration_seconds",
			Help:    "Time from booking request to commit or rejection",
			Buckets: prometheus.DefBuckets,
		}),
		LockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_lock_acquisitions_total",
			Help: "Slot lock acquisition attempts by result",
		}, []string{"result"}),
		ProposalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_proposal_transitions_total",
			Help: "Change proposal transitions by resulting status",
		}, []string{"status"}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_sweep_runs_total",
			Help: "Completed expiry sweeps",
		}),
		SweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_sweep_expired_total",
			Help: "Proposals expired by the sweeper",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_notifications_total",
			Help: "Notification emits by event type and result",
		}, []string{"type", "result"}),
	}
}

// Register registers every collector on reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Bookings,
		m.BookingDuration,
		m.LockAcquisitions,
		m.ProposalTransitions,
		m.SweepRuns,
		m.SweepExpired,
		m.Notifications,
	)
}

func (m *Metrics) ObserveBooking(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(result).Inc()
	m.BookingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) LockAttempt(result string) {
	if m == nil {
		return
	}
	m.LockAcquisitions.WithLabelValues(result).Inc()
}

func (m *Metrics) ProposalTransition(status string) {
	if m == nil {
		return
	}
	m.ProposalTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Sweep(expired int) {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
	m.SweepExpired.Add(float64(expired))
}

func (m *Metrics) Notification(eventType string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.Notifications.WithLabelValues(eventType, result).Inc()
}
