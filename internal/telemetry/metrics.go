package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tilehook"

// Collector exports Stats as Prometheus counters at scrape time.
type Collector struct {
	stats   *Stats
	packets *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over stats.
func NewCollector(stats *Stats) *Collector {
	return &Collector{
		stats: stats,
		packets: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "codec", "packets_total"),
			"Packets seen by the codec and pipeline, by kind, side and outcome.",
			[]string{"kind", "name", "side", "outcome"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packets
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, kc := range c.stats.Snapshot() {
		kind := strconv.Itoa(int(kc.Kind))
		side := kc.Side.String()
		for _, o := range []struct {
			outcome string
			value   int64
		}{
			{"decoded", kc.Decoded},
			{"encoded", kc.Encoded},
			{"error", kc.Errors},
			{"unknown", kc.Unknown},
			{"dropped", kc.Dropped},
			{"rewritten", kc.Rewritten},
		} {
			if o.value == 0 {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.packets, prometheus.CounterValue,
				float64(o.value), kind, kc.Name, side, o.outcome)
		}
	}
}

// NewMetricsRegistry builds a registry with the packet collector plus the Go
// runtime and process collectors.
func NewMetricsRegistry(stats *Stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(stats),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
