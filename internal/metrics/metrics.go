// Package metrics exposes Prometheus collectors for analysis runs, record
// loads and the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdq-signal-server/internal/domain"
)

const namespace = "pdq"

// Default buckets
var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultStageDurationBuckets = []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300}
)

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	SourceLoadDuration  *prometheus.HistogramVec
	SourceRecords       *prometheus.GaugeVec
	RiskModelAccuracy   prometheus.Gauge
	CapaCandidates      prometheus.Gauge
	Deviations          prometheus.Gauge
	Mismatches          prometheus.Gauge
	CacheRequestsTotal  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors, plus the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by source and risk model state",
		}, []string{"source", "risk_state"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_stage_duration_seconds",
			Help:      "Duration of each analysis stage",
			Buckets:   DefaultStageDurationBuckets,
		}, []string{"stage"}),
		SourceLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_load_duration_seconds",
			Help:      "Duration of record source loads",
			Buckets:   DefaultStageDurationBuckets,
		}, []string{"source", "status"}),
		SourceRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_records",
			Help:      "Rows per table in the last loaded snapshot",
		}, []string{"table"}),
		RiskModelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_model_test_accuracy",
			Help:      "Test accuracy of the last trained risk model",
		}),
		CapaCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capa_candidates",
			Help:      "CAPA candidates in the last run",
		}),
		Deviations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "therapy_deviations",
			Help:      "Therapy interval deviations in the last run",
		}),
		Mismatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indication_mismatches",
			Help:      "Indication and reaction mismatches in the last run",
		}),
		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_requests_total",
			Help:      "Analysis cache lookups by result",
		}, []string{"result"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   DefaultHTTPDurationBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.StageDuration,
		m.SourceLoadDuration,
		m.SourceRecords,
		m.RiskModelAccuracy,
		m.CapaCandidates,
		m.Deviations,
		m.Mismatches,
		m.CacheRequestsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLoad records a source load and, on success, the table sizes
func (m *Metrics) ObserveLoad(source string, started time.Time, set *domain.RecordSet, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SourceLoadDuration.WithLabelValues(source, status).Observe(time.Since(started).Seconds())
	if err != nil || set == nil {
		return
	}
	for table, n := range set.Counts() {
		m.SourceRecords.WithLabelValues(table).Set(float64(n))
	}
}

// ObserveStage records the duration of one analysis stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveDashboard records the outcome of a completed run
func (m *Metrics) ObserveDashboard(d *domain.Dashboard) {
	m.RunsTotal.WithLabelValues(d.Source, string(d.PredictiveModeling.State)).Inc()
	m.Deviations.Set(float64(d.DeviationTracking.Deviations))
	m.CapaCandidates.Set(float64(len(d.CapaCandidates.Candidates)))
	m.Mismatches.Set(float64(d.MismatchAnalysis.Mismatches))
	if d.AuditSummary.Summary != nil {
		m.RiskModelAccuracy.Set(d.AuditSummary.Summary.TestAccuracy)
	}
}

// ObserveCache counts a cache hit or miss
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}
