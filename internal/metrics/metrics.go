package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "booking_created_total",
			Help:      "Count of reservations created by kind and status.",
		},
		[]string{"kind", "status"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "booking_conflict_total",
			Help:      "Count of reservation writes rejected because rooms were taken.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "booking_cancelled_total",
			Help:      "Count of reservations cancelled.",
		},
	)

	adminDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "admin_decision_total",
			Help:      "Count of administrator decisions over reservations and accounts.",
		},
		[]string{"decision"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	availabilitySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "roombook",
			Name:      "availability_compute_seconds",
			Help:      "Time spent computing availability for a day.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingConflicts, bookingCancelled,
			adminDecision, httpRequests, availabilitySeconds,
		)
	})
}

func IncBookingCreated(kind, status string) {
	bookingCreated.WithLabelValues(kind, status).Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncAdminDecision(decision string) {
	adminDecision.WithLabelValues(decision).Inc()
}

func IncHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func ObserveAvailability(seconds float64) {
	availabilitySeconds.Observe(seconds)
}
