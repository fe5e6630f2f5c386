package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandlePrometheusMetrics exports the engine collectors in Prometheus format
func HandlePrometheusMetrics(gatherer prometheus.Gatherer) http.HandlerFunc {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP
}
