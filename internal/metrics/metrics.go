// Package metrics holds the Prometheus collectors for seat admission.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Admission outcomes recorded on the admissions counter.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeRejected  = "rejected"
	OutcomeInvalid   = "invalid"
	OutcomeNotFound  = "not_found"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// Booking groups the counters updated by the booking service.
type Booking struct {
	Admissions      *prometheus.CounterVec
	SeatsCommitted  prometheus.Counter
	SeatsFreed      prometheus.Counter
	PublishFailures prometheus.Counter
}

// NewBooking creates the booking collectors and registers them on reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewBooking(reg prometheus.Registerer) *Booking {
	m := &Booking{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "admissions_total",
			Help:      "Seat admission decisions by operation and outcome.",
		}, []string{"op", "outcome"}),
		SeatsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "seats_committed_total",
			Help:      "Seats newly committed by reservations and edits.",
		}),
		SeatsFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "seats_freed_total",
			Help:      "Seats released by cancellations and downward edits.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "activity_publish_failures_total",
			Help:      "Reservation activity messages that could not be published.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Admissions, m.SeatsCommitted, m.SeatsFreed, m.PublishFailures)
	}
	return m
}
