// Package metrics exposes Prometheus collectors for the print pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every labelspool collector plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	BlocksSentTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labelspool",
			Name:      "blocks_sent_total",
			Help:      "Label blocks handed to the printer, by outcome",
		},
		[]string{"status"},
	)

	FilesDispatchedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labelspool",
			Name:      "files_dispatched_total",
			Help:      "Files dispatched, by origin and outcome",
		},
		[]string{"origin", "outcome"},
	)

	FilesDeletedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "labelspool",
		Name:      "files_deleted_total",
		Help:      "Monitored files deleted after a complete print",
	})

	DirectoryErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "labelspool",
		Name:      "directory_errors_total",
		Help:      "Monitor ticks that could not list the watched folder",
	})

	FilesInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "labelspool",
		Name:      "files_in_flight",
		Help:      "Monitored files currently submitted and not yet resolved",
	})

	DispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labelspool",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from reading a file to its last block, including pacing",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"origin"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordBlock counts one block send attempt.
func RecordBlock(ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	BlocksSentTotal.WithLabelValues(status).Inc()
}

// RecordFile counts one finished dispatch.
func RecordFile(origin, outcome string, took time.Duration) {
	FilesDispatchedTotal.WithLabelValues(origin, outcome).Inc()
	DispatchDuration.WithLabelValues(origin).Observe(took.Seconds())
}

func RecordDelete() {
	FilesDeletedTotal.Inc()
}

func RecordDirectoryError() {
	DirectoryErrorsTotal.Inc()
}

func SetInFlight(n int) {
	FilesInFlight.Set(float64(n))
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
