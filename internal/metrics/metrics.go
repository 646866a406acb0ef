// Package metrics exposes the core's counters and gauges as Prometheus
// collectors, in the Describe/Collect shape demonstrated by
// runZeroInc-sockstats' TCPInfoCollector: a small set of metric
// descriptions paired with supplier functions that read live state at
// scrape time rather than being pushed eagerly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnGauges is the live state a registered connection exposes at scrape
// time. Implemented by *stream.Connection.
type ConnGauges interface {
	PeerLabel() string
	Cwnd() float64
	BytesInFlight() float64
	SmoothedRTTSeconds() float64
	MinRTTSeconds() float64
}

// StreamCollector aggregates per-connection gauges across every live
// stream-transport connection, registered and unregistered as
// connections come and go.
type StreamCollector struct {
	mu    sync.Mutex
	conns map[string]ConnGauges

	cwndDesc        *prometheus.Desc
	inFlightDesc    *prometheus.Desc
	smoothedRTTDesc *prometheus.Desc
	minRTTDesc      *prometheus.Desc

	Retransmits prometheus.Counter
	LossEvents  prometheus.Counter
	HandshakeOK prometheus.Counter
	HandshakeTO prometheus.Counter
}

// NewStreamCollector builds a collector ready to Register.
func NewStreamCollector() *StreamCollector {
	return &StreamCollector{
		conns:           make(map[string]ConnGauges),
		cwndDesc:        prometheus.NewDesc("marlin_stream_cwnd_bytes", "Congestion window", []string{"peer"}, nil),
		inFlightDesc:    prometheus.NewDesc("marlin_stream_bytes_in_flight", "Unacked bytes on the wire", []string{"peer"}, nil),
		smoothedRTTDesc: prometheus.NewDesc("marlin_stream_smoothed_rtt_seconds", "Smoothed RTT", []string{"peer"}, nil),
		minRTTDesc:      prometheus.NewDesc("marlin_stream_min_rtt_seconds", "Minimum observed RTT", []string{"peer"}, nil),
		Retransmits:     prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_stream_retransmits_total", Help: "Packets retransmitted after loss detection"}),
		LossEvents:      prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_stream_loss_events_total", Help: "Congestion-control loss events"}),
		HandshakeOK:     prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_stream_handshakes_total", Help: "Handshakes that reached Established"}),
		HandshakeTO:     prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_stream_handshake_timeouts_total", Help: "Handshakes abandoned after backoff"}),
	}
}

// Register adds a connection's gauges to the scrape set.
func (c *StreamCollector) Register(key string, g ConnGauges) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[key] = g
}

// Unregister removes a connection, e.g. on Close.
func (c *StreamCollector) Unregister(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, key)
}

func (c *StreamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cwndDesc
	ch <- c.inFlightDesc
	ch <- c.smoothedRTTDesc
	ch <- c.minRTTDesc
	c.Retransmits.Describe(ch)
	c.LossEvents.Describe(ch)
	c.HandshakeOK.Describe(ch)
	c.HandshakeTO.Describe(ch)
}

func (c *StreamCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snapshot := make([]ConnGauges, 0, len(c.conns))
	for _, g := range c.conns {
		snapshot = append(snapshot, g)
	}
	c.mu.Unlock()

	for _, g := range snapshot {
		label := g.PeerLabel()
		ch <- prometheus.MustNewConstMetric(c.cwndDesc, prometheus.GaugeValue, g.Cwnd(), label)
		ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, g.BytesInFlight(), label)
		ch <- prometheus.MustNewConstMetric(c.smoothedRTTDesc, prometheus.GaugeValue, g.SmoothedRTTSeconds(), label)
		ch <- prometheus.MustNewConstMetric(c.minRTTDesc, prometheus.GaugeValue, g.MinRTTSeconds(), label)
	}
	c.Retransmits.Collect(ch)
	c.LossEvents.Collect(ch)
	c.HandshakeOK.Collect(ch)
	c.HandshakeTO.Collect(ch)
}

// PubsubMetrics tracks pubsub-layer counters: forward/deliver/dedup/drop
// events, and gauges for the three peer-slot sets per spec §4.2.2.
type PubsubMetrics struct {
	Delivered     prometheus.Counter
	Forwarded     prometheus.Counter
	DedupDropped  prometheus.Counter
	WitnessLoop   prometheus.Counter
	VerifyFailed  prometheus.Counter
	SolConns      prometheus.Gauge
	StandbyConns  prometheus.Gauge
	UnsolConns    prometheus.Gauge
}

// NewPubsubMetrics builds the pubsub counters/gauges, ready to Register
// individually with a prometheus.Registerer.
func NewPubsubMetrics() *PubsubMetrics {
	return &PubsubMetrics{
		Delivered:    prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_pubsub_delivered_total", Help: "Messages delivered to the local application"}),
		Forwarded:    prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_pubsub_forwarded_total", Help: "Messages forwarded to peers"}),
		DedupDropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_pubsub_dedup_dropped_total", Help: "Messages dropped as duplicates"}),
		WitnessLoop:  prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_pubsub_witness_loop_total", Help: "Messages dropped as witness loops"}),
		VerifyFailed: prometheus.NewCounter(prometheus.CounterOpts{Name: "marlin_pubsub_verify_failed_total", Help: "Messages dropped on attestation failure"}),
		SolConns:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "marlin_pubsub_sol_conns", Help: "Solicited peer connections"}),
		StandbyConns: prometheus.NewGauge(prometheus.GaugeOpts{Name: "marlin_pubsub_standby_conns", Help: "Solicited-standby peer connections"}),
		UnsolConns:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "marlin_pubsub_unsol_conns", Help: "Unsolicited peer connections"}),
	}
}

// MustRegisterAll registers every metric with reg, panicking on
// duplicate registration (mirrors prometheus.MustRegister's contract).
func (m *PubsubMetrics) MustRegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(m.Delivered, m.Forwarded, m.DedupDropped, m.WitnessLoop, m.VerifyFailed, m.SolConns, m.StandbyConns, m.UnsolConns)
}
