// Package metrics exposes Prometheus collectors for filer cycles.
//
// All collectors live on a private registry so that several Metrics
// values (one per test, for example) never collide on the global
// default registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the filer collectors.
type Metrics struct {
	registry *prometheus.Registry

	filesDiscovered prometheus.Counter
	filesProcessed  prometheus.Counter
	recordsSkipped  prometheus.Counter
	filesPurged     prometheus.Counter
	filesMoved      prometheus.Counter
	ledgerEvicted   prometheus.Counter
	ledgerEntries   prometheus.Gauge
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
}

// New creates collectors registered on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		filesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_files_discovered_total",
			Help: "Total number of new files found by discovery",
		}),
		filesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_files_processed_total",
			Help: "Total number of files parsed, rendered and recorded",
		}),
		recordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_records_skipped_total",
			Help: "Total number of input lines skipped for a wrong field count",
		}),
		filesPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_files_purged_total",
			Help: "Total number of expired files deleted",
		}),
		filesMoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_files_moved_total",
			Help: "Total number of processed files moved to the archive",
		}),
		ledgerEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "filer_ledger_evicted_total",
			Help: "Total number of ledger entries dropped by eviction",
		}),
		ledgerEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filer_ledger_entries",
			Help: "Number of entries in the ledger after the last eviction",
		}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filer_cycles_total",
			Help: "Total number of processing cycles by result",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "filer_cycle_duration_seconds",
			Help:    "Duration of processing cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// FilesDiscovered adds n newly discovered files.
func (m *Metrics) FilesDiscovered(n int) {
	if m == nil {
		return
	}
	m.filesDiscovered.Add(float64(n))
}

// FileProcessed records one processed file and the lines it skipped.
func (m *Metrics) FileProcessed(skipped int) {
	if m == nil {
		return
	}
	m.filesProcessed.Inc()
	m.recordsSkipped.Add(float64(skipped))
}

// FilesPurged adds n deleted files.
func (m *Metrics) FilesPurged(n int) {
	if m == nil {
		return
	}
	m.filesPurged.Add(float64(n))
}

// FileMoved records one archived file.
func (m *Metrics) FileMoved() {
	if m == nil {
		return
	}
	m.filesMoved.Inc()
}

// CycleFinished records a cycle outcome and its duration.
func (m *Metrics) CycleFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// LedgerEvicted implements ledger.Observer.
func (m *Metrics) LedgerEvicted(n int) {
	if m == nil {
		return
	}
	m.ledgerEvicted.Add(float64(n))
}

// LedgerSize implements ledger.Observer.
func (m *Metrics) LedgerSize(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}
