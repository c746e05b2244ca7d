package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder loop.
type Metrics struct {
	// RemindersSentTotal counts reminders by outcome ("sent", "failed").
	RemindersSentTotal *prometheus.CounterVec

	// RemindersDue is the number of reminders found by the last check.
	RemindersDue prometheus.Gauge

	// ReminderSendDuration is the time to send a reminder.
	ReminderSendDuration prometheus.Histogram
}

// NewMetrics creates the reminder metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of booking reminders by outcome",
			},
			[]string{"status"},
		),

		RemindersDue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_due",
				Help:      "Reminders found by the last check",
			},
		),

		ReminderSendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to send a reminder",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 30},
			},
		),
	}
}

func (m *Metrics) incSent(status string) {
	if m == nil {
		return
	}
	m.RemindersSentTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) setDue(n int) {
	if m == nil {
		return
	}
	m.RemindersDue.Set(float64(n))
}

func (m *Metrics) observeSend(seconds float64) {
	if m == nil {
		return
	}
	m.ReminderSendDuration.Observe(seconds)
}
