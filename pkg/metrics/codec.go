package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusPath serves the round codec counters.
const PrometheusPath = "/metrics"

var (
	registry = prometheus.NewRegistry()

	exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gulfer",
		Name:      "round_exports_total",
		Help:      "Round exports by outcome.",
	}, []string{"outcome"})

	imports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gulfer",
		Name:      "round_imports_total",
		Help:      "Round imports by outcome.",
	}, []string{"outcome"})

	backups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gulfer",
		Name:      "round_backups_total",
		Help:      "Rounds written by the backup job, by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(exports, imports, backups)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveExport(err error) { exports.WithLabelValues(outcome(err)).Inc() }

func ObserveImport(err error) { imports.WithLabelValues(outcome(err)).Inc() }

func ObserveBackup(err error) { backups.WithLabelValues(outcome(err)).Inc() }

// PrometheusHandler exposes the codec counters in the Prometheus text format.
func PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
