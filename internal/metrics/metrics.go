// Package metrics exposes flow table activity to Prometheus.
package metrics

import (
	"sync/atomic"
	"time"

	"FlowChains/internal/core/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the flow table Prometheus metrics. It implements
// flowtable.Recorder and prometheus.Collector.
type Metrics struct {
	PacketsIngested prometheus.Counter
	FlowsCreated    prometheus.Counter
	FlowsEmitted    *prometheus.CounterVec
	EmittedPackets  prometheus.Counter
	ActiveFlowCount prometheus.Gauge
	IngestFailures  prometheus.Counter

	packets, created, failed, emittedPackets atomic.Uint64
	emitted                                  [model.EndReasonFlush + 1]atomic.Uint64
	active                                   atomic.Int64
	started                                  time.Time
}

// New creates the metrics. Nothing is registered yet.
func New() *Metrics {
	return &Metrics{
		PacketsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chains_packets_ingested_total",
			Help: "Total number of packet records added to a flow",
		}),
		FlowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chains_flows_created_total",
			Help: "Total number of flows created by the flow table",
		}),
		FlowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chains_flows_emitted_total",
			Help: "Total number of flows handed out, by end reason",
		}, []string{"reason"}),
		EmittedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chains_flow_packets_emitted_total",
			Help: "Total number of packets carried by emitted flows",
		}),
		ActiveFlowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chains_active_flows",
			Help: "Number of flows currently held by the flow table",
		}),
		IngestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chains_ingest_failures_total",
			Help: "Total number of packet records the flow table rejected",
		}),
		started: time.Now(),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.PacketsIngested.Describe(ch)
	m.FlowsCreated.Describe(ch)
	m.FlowsEmitted.Describe(ch)
	m.EmittedPackets.Describe(ch)
	m.ActiveFlowCount.Describe(ch)
	m.IngestFailures.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.PacketsIngested.Collect(ch)
	m.FlowsCreated.Collect(ch)
	m.FlowsEmitted.Collect(ch)
	m.EmittedPackets.Collect(ch)
	m.ActiveFlowCount.Collect(ch)
	m.IngestFailures.Collect(ch)
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

func (m *Metrics) PacketIngested() {
	m.packets.Add(1)
	m.PacketsIngested.Inc()
}

func (m *Metrics) FlowCreated() {
	m.created.Add(1)
	m.FlowsCreated.Inc()
}

func (m *Metrics) FlowEmitted(reason model.EndReason, packets int) {
	if int(reason) < len(m.emitted) {
		m.emitted[reason].Add(1)
	}
	m.emittedPackets.Add(uint64(packets))
	m.FlowsEmitted.WithLabelValues(reason.String()).Inc()
	m.EmittedPackets.Add(float64(packets))
}

func (m *Metrics) ActiveFlows(n int) {
	m.active.Store(int64(n))
	m.ActiveFlowCount.Set(float64(n))
}

func (m *Metrics) IngestFailed() {
	m.failed.Add(1)
	m.IngestFailures.Inc()
}

// Stats is a point in time copy of the counters.
type Stats struct {
	PacketsIngested uint64            `json:"packets_ingested"`
	FlowsCreated    uint64            `json:"flows_created"`
	FlowsEmitted    map[string]uint64 `json:"flows_emitted"`
	EmittedPackets  uint64            `json:"emitted_packets"`
	ActiveFlows     int64             `json:"active_flows"`
	IngestFailures  uint64            `json:"ingest_failures"`
	Uptime          string            `json:"uptime"`
}

// Stats returns the current counters.
func (m *Metrics) Stats() Stats {
	emitted := make(map[string]uint64, len(m.emitted)-1)
	for r := model.EndReasonComplete; r <= model.EndReasonFlush; r++ {
		emitted[r.String()] = m.emitted[r].Load()
	}
	return Stats{
		PacketsIngested: m.packets.Load(),
		FlowsCreated:    m.created.Load(),
		FlowsEmitted:    emitted,
		EmittedPackets:  m.emittedPackets.Load(),
		ActiveFlows:     m.active.Load(),
		IngestFailures:  m.failed.Load(),
		Uptime:          time.Since(m.started).Round(time.Second).String(),
	}
}
