package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()
	pending  []prometheus.Collector
)

// register queues paywall collectors from each file's init.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister installs the paywall collectors plus the Go runtime and
// process collectors into the package registry. Later calls are no-ops.
func MustRegister() {
	once.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry.MustRegister(pending...)
	})
}

// Handler exposes the package registry in the Prometheus text format.
func Handler() http.Handler {
	MustRegister()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
