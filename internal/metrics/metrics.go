// Package metrics records sync run statistics in a Prometheus registry that is
// either scraped (serve mode) or written as a node-exporter textfile.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "icssync"

// Run results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder owns the registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	events      *prometheus.CounterVec
	skipped     prometheus.Counter
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	duration    prometheus.Histogram
}

// New creates a Recorder with a private registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events written to the calendar by outcome.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_events_total",
			Help:      "Feed events dropped for missing fields or duplicate UIDs.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
	r.registry.MustRegister(r.runs, r.events, r.skipped, r.lastRun, r.lastSuccess, r.duration)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(result string, d time.Duration, finished time.Time) {
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(d.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
	if result == ResultSuccess {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// AddEvents counts n events with the given outcome.
func (r *Recorder) AddEvents(outcome string, n int) {
	if n > 0 {
		r.events.WithLabelValues(outcome).Add(float64(n))
	}
}

// AddSkipped counts feed events that never reached the calendar.
func (r *Recorder) AddSkipped(n int) {
	if n > 0 {
		r.skipped.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteTextfile atomically writes the registry to path for the node-exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
