package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muraguri00/zalora-luxury/supabase/client"
)

// UpstreamSource reports the request counters of the hosted-database client.
// *client.ResilientClient satisfies it.
type UpstreamSource interface {
	Stats() client.Stats
	CircuitState() client.CircuitState
}

type upstreamHolder struct{ src UpstreamSource }

// upstreamCollector exports the counters of whichever source was last set
// with ObserveUpstream. Nothing is exported until then.
type upstreamCollector struct {
	current  atomic.Pointer[upstreamHolder]
	requests *prometheus.Desc
	circuit  *prometheus.Desc
}

var upstream = &upstreamCollector{
	requests: prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "upstream", "requests_total"),
		"Requests sent to the hosted database by outcome.",
		[]string{"outcome"}, nil,
	),
	circuit: prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "upstream", "circuit_state"),
		"Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		nil, nil,
	),
}

// ObserveUpstream exports src. A nil src stops the export.
func ObserveUpstream(src UpstreamSource) {
	if src == nil {
		upstream.current.Store(nil)
		return
	}
	upstream.current.Store(&upstreamHolder{src: src})
}

func (c *upstreamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.circuit
}

func (c *upstreamCollector) Collect(ch chan<- prometheus.Metric) {
	h := c.current.Load()
	if h == nil {
		return
	}
	stats := h.src.Stats()
	for outcome, v := range map[string]int64{
		"total":     stats.Total,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"retried":   stats.Retried,
	} {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(v), outcome)
	}
	ch <- prometheus.MustNewConstMetric(c.circuit, prometheus.GaugeValue, float64(h.src.CircuitState()))
}
