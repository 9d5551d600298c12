package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the standard Prometheus scrape endpoint handler, serving
// whatever has been registered via promauto (i.e. every PrometheusRecorder
// a process has constructed).
func Handler() http.Handler {
	return promhttp.Handler()
}
