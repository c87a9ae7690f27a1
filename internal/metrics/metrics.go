// Package metrics holds the Prometheus collectors for downloads, retries
// and connection probes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the s3fetch collectors on a private registry.
type Metrics struct {
	reg        *prometheus.Registry
	strategies *prometheus.CounterVec   // labels: strategy, result
	retries    *prometheus.CounterVec   // labels: method
	bytes      prometheus.Counter
	duration   *prometheus.HistogramVec // labels: result
	probes     *prometheus.CounterVec   // labels: probe, result
	warnings   *prometheus.CounterVec   // labels: kind
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	strategies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s3fetch",
		Subsystem: "download",
		Name:      "strategy_attempts_total",
		Help:      "Download strategy attempts by outcome.",
	}, []string{"strategy", "result"}) // result = "ok" | failure kind
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s3fetch",
		Subsystem: "http",
		Name:      "retries_total",
		Help:      "Requests re-sent after a transport failure.",
	}, []string{"method"})
	bytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3fetch",
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Object bytes downloaded.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "s3fetch",
		Subsystem: "download",
		Name:      "duration_seconds",
		Help:      "Histogram of whole download durations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s3fetch",
		Subsystem: "conntest",
		Name:      "probes_total",
		Help:      "Connection test probes by outcome.",
	}, []string{"probe", "result"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s3fetch",
		Subsystem: "download",
		Name:      "content_warnings_total",
		Help:      "Downloads returned with a content validation warning.",
	}, []string{"kind"})

	reg.MustRegister(strategies, retries, bytes, duration, probes, warnings)

	return &Metrics{
		reg:        reg,
		strategies: strategies,
		retries:    retries,
		bytes:      bytes,
		duration:   duration,
		probes:     probes,
		warnings:   warnings,
	}
}

// Registry exposes the registry, e.g. for a textfile dump.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveStrategy records one strategy attempt. result is "ok" or a failure kind.
func (m *Metrics) ObserveStrategy(strategy, result string) {
	m.strategies.WithLabelValues(strategy, result).Inc()
}

// ObserveRetry records a request re-sent after a transport failure.
func (m *Metrics) ObserveRetry(method string) {
	m.retries.WithLabelValues(method).Inc()
}

// ObserveDownload records a finished download.
func (m *Metrics) ObserveDownload(size int64, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.bytes.Add(float64(size))
	}
	m.duration.WithLabelValues(result).Observe(dur.Seconds())
}

// ObserveProbe records one connection test probe.
func (m *Metrics) ObserveProbe(probe string, ok bool) {
	result := "fail"
	if ok {
		result = "ok"
	}
	m.probes.WithLabelValues(probe, result).Inc()
}

// ObserveWarning records a content validation warning.
func (m *Metrics) ObserveWarning(kind string) {
	m.warnings.WithLabelValues(kind).Inc()
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
