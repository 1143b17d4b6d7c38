package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramUpdatesTotal,
		telegramRateLimitedTotal,
		notificationsTotal,
	)
}

var (
	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Incoming updates by kind (command, callback, message).",
		},
		[]string{"kind", "name"},
	)

	telegramRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_rate_limited_total",
			Help: "Requests refused by the per-user rate limiter.",
		},
		[]string{"action"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outgoing best-effort messages by purpose and outcome (ok, blocked, error).",
		},
		[]string{"purpose", "outcome"},
	)
)

func IncTelegramUpdate(kind, name string) {
	telegramUpdatesTotal.WithLabelValues(norm(kind), norm(name)).Inc()
}

func IncRateLimited(action string) {
	telegramRateLimitedTotal.WithLabelValues(norm(action)).Inc()
}

func IncNotification(purpose, outcome string) {
	notificationsTotal.WithLabelValues(norm(purpose), norm(outcome)).Inc()
}
