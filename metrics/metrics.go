// Package metrics holds the Prometheus collectors for Connections scans.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conntrack_airport"

// Metrics holds all scan metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Scans             prometheus.Counter
	ScanErrors        *prometheus.CounterVec
	DumpDuration      prometheus.Histogram
	FlowsDumped       prometheus.Counter
	FlowsReturned     prometheus.Counter
	PredicatesDropped *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of Connections table scans.",
		}),
		ScanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Total number of failed scans by stage.",
		}, []string{"stage"}),
		DumpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dump_duration_seconds",
			Help:      "Time spent dumping the kernel conntrack table, including lock wait.",
			// 100us to ~3s.
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		FlowsDumped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_dumped_total",
			Help:      "Total number of flows that passed the pushed-down filter.",
		}),
		FlowsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_returned_total",
			Help:      "Total number of flows handed to readers after the scan limit.",
		}),
		PredicatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicates_dropped_total",
			Help:      "Total number of predicates that could not be pushed down, by reason.",
		}, []string{"reason"}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Scans.Describe(ch)
	m.ScanErrors.Describe(ch)
	m.DumpDuration.Describe(ch)
	m.FlowsDumped.Describe(ch)
	m.FlowsReturned.Describe(ch)
	m.PredicatesDropped.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Scans.Collect(ch)
	m.ScanErrors.Collect(ch)
	m.DumpDuration.Collect(ch)
	m.FlowsDumped.Collect(ch)
	m.FlowsReturned.Collect(ch)
	m.PredicatesDropped.Collect(ch)
}

// Register registers m with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

// ObserveDrop counts one predicate that was not pushed down.
func (m *Metrics) ObserveDrop(reason string) {
	if m == nil {
		return
	}
	m.PredicatesDropped.WithLabelValues(reason).Inc()
}

// ObserveScan counts one scan.
func (m *Metrics) ObserveScan() {
	if m == nil {
		return
	}
	m.Scans.Inc()
}

// ObserveScanError counts one failed scan at stage ("compile", "dump").
func (m *Metrics) ObserveScanError(stage string) {
	if m == nil {
		return
	}
	m.ScanErrors.WithLabelValues(stage).Inc()
}

// ObserveDump records a completed dump.
func (m *Metrics) ObserveDump(d time.Duration, flows int) {
	if m == nil {
		return
	}
	m.DumpDuration.Observe(d.Seconds())
	m.FlowsDumped.Add(float64(flows))
}

// ObserveReturned counts flows handed to a reader.
func (m *Metrics) ObserveReturned(flows int) {
	if m == nil {
		return
	}
	m.FlowsReturned.Add(float64(flows))
}
