package metrics

import (
	"net/http"
	"regexp"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tgrelay"

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Collector exposes a Registry to Prometheus. It is unchecked: metric
// descriptors are built at collection time from whatever the registry holds.
type Collector struct {
	registry *Registry
}

// NewCollector wraps registry.
func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.GetAllMetrics()

	for _, m := range snap.Counters {
		desc, values := describe(m.Name+"_total", m.Description, m.Labels)
		if metric, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, m.Value, values...); err == nil {
			ch <- metric
		}
	}
	for _, m := range snap.Gauges {
		desc, values := describe(m.Name, m.Description, m.Labels)
		if metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, m.Value, values...); err == nil {
			ch <- metric
		}
	}
	for _, tm := range snap.Timers {
		desc, values := describe(tm.Name+"_milliseconds", tm.Description, tm.Labels)
		quantiles := map[float64]float64{}
		if tm.P95 > 0 {
			quantiles[0.95] = tm.P95
		}
		if tm.P99 > 0 {
			quantiles[0.99] = tm.P99
		}
		if metric, err := prometheus.NewConstSummary(desc, uint64(tm.Count), tm.Sum, quantiles, values...); err == nil {
			ch <- metric
		}
	}
}

func describe(name, help string, labels map[string]string) (*prometheus.Desc, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		names[i] = sanitizeName(k)
		values[i] = labels[k]
	}
	if help == "" {
		help = name
	}
	fq := prometheus.BuildFQName(namespace, "", sanitizeName(name))
	return prometheus.NewDesc(fq, help, names, nil), values
}

func sanitizeName(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

// PrometheusHandler serves registry in the Prometheus text format alongside
// the Go runtime and process collectors.
func PrometheusHandler(registry *Registry) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(registry),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
