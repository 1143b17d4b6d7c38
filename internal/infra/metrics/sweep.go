package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sweepRunsTotal,
		sweepDurationSeconds,
		sweepItemErrorsTotal,
		reportsSentTotal,
	)
}

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Sweep runs by trigger (ticker, queue, api) and result.",
		},
		[]string{"trigger", "result"},
	)

	sweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Wall time of one sweep run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	sweepItemErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_item_errors_total",
			Help: "Per-item failures inside a sweep pass.",
		},
		[]string{"pass"},
	)

	reportsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_sent_total",
			Help: "Scheduled analytics reports by result.",
		},
		[]string{"result"},
	)
)

func ObserveSweep(trigger string, d time.Duration, err error) {
	sweepRunsTotal.WithLabelValues(norm(trigger), result(err)).Inc()
	sweepDurationSeconds.Observe(d.Seconds())
}

func AddSweepItemErrors(pass string, n int) {
	if n > 0 {
		sweepItemErrorsTotal.WithLabelValues(norm(pass)).Add(float64(n))
	}
}

func IncReport(err error) { reportsSentTotal.WithLabelValues(result(err)).Inc() }
