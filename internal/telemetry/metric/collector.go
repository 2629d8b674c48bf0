package metric

import "github.com/prometheus/client_golang/prometheus"

// StatusFunc reports the current sync status ("idle", "syncing", "error").
type StatusFunc func() string

var statuses = []string{"idle", "syncing", "error"}

// StatusCollector exposes the orchestrator status as a one-hot gauge,
// sampled at scrape time.
type StatusCollector struct {
	status StatusFunc
	desc   *prometheus.Desc
}

// NewStatusCollector creates a collector that calls fn on every scrape.
func NewStatusCollector(fn StatusFunc) *StatusCollector {
	return &StatusCollector{
		status: fn,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sync_status"),
			"Current sync status, 1 for the active state",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	current := c.status()
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, v, s)
	}
}
