package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected for slot overlap.",
		},
	)

	bookingApproved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "booking_approved_total",
			Help:      "Count of bookings approved.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	bookingExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "booking_expired_total",
			Help:      "Count of pending bookings expired by the sweeper.",
		},
	)

	paymentCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "payment_completed_total",
			Help:      "Count of payments completed.",
		},
	)

	paymentRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "payment_rejected_total",
			Help:      "Count of payments rejected by reason.",
		},
		[]string{"reason"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitchbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingConflicts, bookingApproved,
			bookingCancelled, bookingExpired,
			paymentCompleted, paymentRejected, httpRequests,
		)
	})
}

func IncBookingCreated()   { bookingCreated.Inc() }
func IncBookingConflict()  { bookingConflicts.Inc() }
func IncBookingApproved()  { bookingApproved.Inc() }
func IncBookingCancelled() { bookingCancelled.Inc() }

func AddBookingsExpired(n int64) {
	bookingExpired.Add(float64(n))
}

func IncPaymentCompleted() { paymentCompleted.Inc() }

func IncPaymentRejected(reason string) {
	paymentRejected.WithLabelValues(reason).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// Recorder adapts the package counters to the service-side metrics
// interfaces.
type Recorder struct{}

func (Recorder) IncBookingCreated()             { IncBookingCreated() }
func (Recorder) IncBookingConflict()            { IncBookingConflict() }
func (Recorder) IncBookingApproved()            { IncBookingApproved() }
func (Recorder) IncBookingCancelled()           { IncBookingCancelled() }
func (Recorder) AddBookingsExpired(n int64)     { AddBookingsExpired(n) }
func (Recorder) IncPaymentCompleted()           { IncPaymentCompleted() }
func (Recorder) IncPaymentRejected(kind string) { IncPaymentRejected(kind) }
