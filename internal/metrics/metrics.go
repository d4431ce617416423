// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printd_jobs_submitted_total",
		Help: "The total number of accepted print jobs",
	})

	JobsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printd_jobs_rejected_total",
		Help: "Print jobs refused because the work queue was full",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printd_jobs_finished_total",
		Help: "Print jobs that reached a terminal status",
	}, []string{"status", "outcome"})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "printd_jobs_running",
		Help: "Print jobs currently held by a worker",
	})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "printd_job_duration_seconds",
		Help:    "Time from dispatch start to terminal status.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"status"})

	DispatchExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printd_dispatch_exit_total",
		Help: "Renderer invocations by exit code",
	}, []string{"code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
