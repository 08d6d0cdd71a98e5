// Package prometheus adapts the engine's counter table to a
// prometheus/client_golang collector.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	sentinel "github.com/sentinelauth/sentinel"
)

// Collector exposes engine counters and the audit drop count. Register it
// on any prometheus.Registerer; it reads fresh values on every scrape.
type Collector struct {
	engine    *sentinel.Engine
	namespace string

	counterDesc *prometheus.Desc
	droppedDesc *prometheus.Desc
}

// NewCollector wraps the engine. namespace defaults to "sentinel".
func NewCollector(engine *sentinel.Engine, namespace string) *Collector {
	if namespace == "" {
		namespace = "sentinel"
	}
	return &Collector{
		engine:    engine,
		namespace: namespace,
		counterDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "events_total"),
			"Engine event counters.",
			[]string{"event"}, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "dropped_total"),
			"Audit events discarded under dispatcher backpressure.",
			nil, nil,
		),
	}
}

var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counterDesc
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, value := range c.engine.Metrics().Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.counterDesc, prometheus.CounterValue, float64(value), name)
	}
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.engine.AuditDropped()))
}
