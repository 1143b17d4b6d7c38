package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activationsTotal,
		previewsTotal,
		expirationsTotal,
		remindersTotal,
	)
}

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activations_total",
			Help: "Activation attempts by kind (subscription, bundle) and result (created, replayed, error).",
		},
		[]string{"kind", "result"},
	)

	previewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "previews_total",
			Help: "Preview lifecycle events (started, expired, converted, refused).",
		},
		[]string{"event"},
	)

	expirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expirations_total",
			Help: "Entitlements moved to EXPIRED by the sweep.",
		},
		[]string{"kind"},
	)

	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_total",
			Help: "Renewal reminders by horizon and outcome.",
		},
		[]string{"horizon", "outcome"},
	)
)

func IncActivation(kind, res string) {
	activationsTotal.WithLabelValues(norm(kind), norm(res)).Inc()
}

func AddPreviews(event string, n int) {
	if n > 0 {
		previewsTotal.WithLabelValues(norm(event)).Add(float64(n))
	}
}

func AddExpirations(kind string, n int) {
	if n > 0 {
		expirationsTotal.WithLabelValues(norm(kind)).Add(float64(n))
	}
}

func AddReminders(horizon, outcome string, n int) {
	if n > 0 {
		remindersTotal.WithLabelValues(norm(horizon), norm(outcome)).Add(float64(n))
	}
}
