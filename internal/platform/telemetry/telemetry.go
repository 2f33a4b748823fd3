// Package telemetry exposes run metrics for generation jobs. Every run gets
// its own Prometheus registry; the result is flushed once at the end, either
// to a node-exporter textfile or to a Pushgateway, since a generator is a
// batch job with nothing to scrape.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

// Namespace prefixes every metric name.
const Namespace = "clinicgen"

// Visit label values.
const (
	VisitNew    = "new"
	VisitRepeat = "repeat"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics collects the counters of one run. It implements dataset.Observer.
type Metrics struct {
	registry *prometheus.Registry

	RecordsGenerated   *prometheus.CounterVec
	ValidationWarnings *prometheus.CounterVec
	Batches            prometheus.Counter
	BatchDuration      prometheus.Histogram

	LastRunValidRatio prometheus.Gauge
	LastRunRecords    prometheus.Gauge
	LastRunDuration   prometheus.Gauge
	LastRunRetries    prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

var _ dataset.Observer = (*Metrics)(nil)

// New registers all run metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		RecordsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_generated_total",
			Help:      "Visit records generated, by new or repeat client",
		}, []string{"visit"}),

		ValidationWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validation_warnings_total",
			Help:      "Soft validation warnings raised on generated records, by category",
		}, []string{"category"}),

		Batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Completed generation batches",
		}),

		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent generating one batch",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		LastRunValidRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_valid_ratio",
			Help:      "Share of records without warnings in the last run",
		}),
		LastRunRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_records",
			Help:      "Records produced by the last run",
		}),
		LastRunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		LastRunRetries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_identifier_retries",
			Help:      "Identifier collision retries in the last run",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_completed_timestamp_seconds",
			Help:      "Unix time the last run completed",
		}),
	}

	// zero-valued series so dashboards see every label from the first run
	m.RecordsGenerated.WithLabelValues(VisitNew)
	m.RecordsGenerated.WithLabelValues(VisitRepeat)
	for _, c := range visit.Categories() {
		m.ValidationWarnings.WithLabelValues(string(c))
	}
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ---------------------------------------------------------------------------
// dataset.Observer
// ---------------------------------------------------------------------------

func (m *Metrics) RecordGenerated(r *visit.Record, warnings []visit.Warning) {
	label := VisitNew
	if r.Repeat {
		label = VisitRepeat
	}
	m.RecordsGenerated.WithLabelValues(label).Inc()
	for _, w := range warnings {
		m.ValidationWarnings.WithLabelValues(string(w.Category)).Inc()
	}
}

func (m *Metrics) BatchCompleted(b dataset.BatchInfo) {
	m.Batches.Inc()
	m.BatchDuration.Observe(b.Duration.Seconds())
}

func (m *Metrics) RunCompleted(s *dataset.Stats) {
	m.LastRunValidRatio.Set(s.ValidRatio())
	m.LastRunRecords.Set(float64(s.Produced))
	m.LastRunDuration.Set(s.Elapsed.Seconds())
	m.LastRunRetries.Set(float64(s.IdentifierRetries))
	m.LastRunTimestamp.SetToCurrentTime()
}

// ---------------------------------------------------------------------------
// Exporters
// ---------------------------------------------------------------------------

// WriteTextfile writes the registry in text exposition format for the
// node-exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push replaces the metrics of job on the Pushgateway at url, grouped by the
// run ID.
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	p := push.New(url, job).Gatherer(m.registry)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
