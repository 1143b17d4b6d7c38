package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminRequestsTotal) }

var adminRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_api_requests_total",
		Help: "Admin API requests by route pattern and HTTP status.",
	},
	[]string{"route", "status"},
)

func IncAdminRequest(route string, status int) {
	adminRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
