package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by cache name and result (hit, miss).",
	},
	[]string{"cache", "result"},
)

func IncCacheRequest(cacheName, res string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(res)).Inc()
}
