package observability

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkilldash9x/salvator/api/schemas"
)

// Stages a run can fail in, pre-registered so the textfile always lists them.
var runStages = []string{"config", "launch", "login", "scrape", "dispatch"}

// RunMetrics describes the most recent run. The process is short-lived, so
// everything is a gauge written out through the node_exporter textfile
// collector rather than served.
type RunMetrics struct {
	registry *prometheus.Registry

	greetings  *prometheus.GaugeVec
	birthdays  prometheus.Gauge
	duration   prometheus.Gauge
	finishedAt prometheus.Gauge
	success    prometheus.Gauge
	failed     *prometheus.GaugeVec
}

// NewRunMetrics registers the run gauges on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &RunMetrics{
		registry: reg,
		greetings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_greetings",
			Help:      "Greetings in the last run by outcome.",
		}, []string{"outcome"}),
		birthdays: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_birthdays",
			Help:      "Birthday entries scraped in the last run.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		finishedAt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_success",
			Help:      "1 if every entry of the last run was sent, else 0.",
		}),
		failed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "salvator",
			Name:      "last_run_failed_stage",
			Help:      "1 for the stage the last run aborted in.",
		}, []string{"stage"}),
	}
	for _, o := range []schemas.OutcomeStatus{schemas.StatusSent, schemas.StatusSkipped, schemas.StatusFailed} {
		m.greetings.WithLabelValues(string(o))
	}
	for _, s := range runStages {
		m.failed.WithLabelValues(s)
	}
	return m
}

// ObserveReport records a run that produced a report.
func (m *RunMetrics) ObserveReport(r schemas.RunReport) {
	m.greetings.WithLabelValues(string(schemas.StatusSent)).Set(float64(r.Sent))
	m.greetings.WithLabelValues(string(schemas.StatusSkipped)).Set(float64(r.Skipped))
	m.greetings.WithLabelValues(string(schemas.StatusFailed)).Set(float64(r.Failed))
	m.birthdays.Set(float64(r.Total))
	m.finish(r.StartedAt, r.FinishedAt)
	if r.AllSent() {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
}

// ObserveFailure records a run that aborted in stage.
func (m *RunMetrics) ObserveFailure(stage string, started, finished time.Time) {
	m.failed.WithLabelValues(stage).Set(1)
	m.success.Set(0)
	m.finish(started, finished)
}

func (m *RunMetrics) finish(started, finished time.Time) {
	m.duration.Set(finished.Sub(started).Seconds())
	m.finishedAt.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile atomically writes the metrics in text exposition format,
// creating the parent directory if needed.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
