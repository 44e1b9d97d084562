package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics contains the Prometheus collectors for the echo service. They are
// registered on a private registry owned by the Metrics value, so several
// servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// TCP metrics
	ConnectionsAccepted prometheus.Counter
	ConnectionsClosed   prometheus.Counter
	ActiveConnections   prometheus.Gauge
	AcceptErrors        prometheus.Counter
	ConnectionErrors    prometheus.Counter
	Flushes             prometheus.Counter

	// UDP metrics
	PacketsReceived prometheus.Counter
	PacketsEchoed   prometheus.Counter
	PacketsDropped  prometheus.Counter
	ReceiveErrors   prometheus.Counter
	SendErrors      prometheus.Counter

	// Byte counters, labelled by protocol
	BytesReceived *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_tcp_connections_accepted_total",
			Help: "Total number of TCP connections accepted",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_tcp_connections_closed_total",
			Help: "Total number of TCP connections finished, cleanly or not",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echo_tcp_active_connections",
			Help: "Current number of open TCP connections",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_tcp_accept_errors_total",
			Help: "Total number of failed TCP accepts",
		}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_tcp_connection_errors_total",
			Help: "Total number of TCP connections aborted by a read or write error",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_tcp_flushes_total",
			Help: "Total number of accumulated TCP buffers written back",
		}),

		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_udp_packets_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		PacketsEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_udp_packets_echoed_total",
			Help: "Total number of UDP datagrams sent back",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_udp_packets_dropped_total",
			Help: "Total number of UDP datagrams shorter than the response threshold",
		}),
		ReceiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_udp_receive_errors_total",
			Help: "Total number of failed UDP receives",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echo_udp_send_errors_total",
			Help: "Total number of failed UDP sends",
		}),

		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echo_bytes_received_total",
			Help: "Total number of payload bytes received",
		}, []string{"protocol"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echo_bytes_sent_total",
			Help: "Total number of payload bytes echoed",
		}, []string{"protocol"}),
	}

	m.registry.MustRegister(
		m.ConnectionsAccepted,
		m.ConnectionsClosed,
		m.ActiveConnections,
		m.AcceptErrors,
		m.ConnectionErrors,
		m.Flushes,
		m.PacketsReceived,
		m.PacketsEchoed,
		m.PacketsDropped,
		m.ReceiveErrors,
		m.SendErrors,
		m.BytesReceived,
		m.BytesSent,
	)

	return m
}

// RecordConnectionOpened records an accepted TCP connection
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsAccepted.Inc()
	m.ActiveConnections.Inc()
}

// RecordConnectionClosed records the end of a TCP connection
func (m *Metrics) RecordConnectionClosed(failed bool) {
	m.ConnectionsClosed.Inc()
	m.ActiveConnections.Dec()
	if failed {
		m.ConnectionErrors.Inc()
	}
}

// RecordAcceptError increments the accept errors counter
func (m *Metrics) RecordAcceptError() {
	m.AcceptErrors.Inc()
}

// RecordTCPReceived adds bytes read from a TCP connection
func (m *Metrics) RecordTCPReceived(n int) {
	m.BytesReceived.WithLabelValues("tcp").Add(float64(n))
}

// RecordFlush records a buffer written back to a TCP peer
func (m *Metrics) RecordFlush(n int) {
	m.Flushes.Inc()
	m.BytesSent.WithLabelValues("tcp").Add(float64(n))
}

// RecordPacketReceived records a received UDP datagram
func (m *Metrics) RecordPacketReceived(n int) {
	m.PacketsReceived.Inc()
	m.BytesReceived.WithLabelValues("udp").Add(float64(n))
}

// RecordPacketEchoed records a datagram sent back to its source
func (m *Metrics) RecordPacketEchoed(n int) {
	m.PacketsEchoed.Inc()
	m.BytesSent.WithLabelValues("udp").Add(float64(n))
}

// RecordPacketDropped increments the short-packet counter
func (m *Metrics) RecordPacketDropped() {
	m.PacketsDropped.Inc()
}

// RecordReceiveError increments the UDP receive errors counter
func (m *Metrics) RecordReceiveError() {
	m.ReceiveErrors.Inc()
}

// RecordSendError increments the UDP send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// Snapshot is a point-in-time copy of the echo counters
type Snapshot struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ActiveConnections   uint64 `json:"active_connections"`
	ConnectionErrors    uint64 `json:"connection_errors"`
	AcceptErrors        uint64 `json:"accept_errors"`
	Flushes             uint64 `json:"flushes"`
	PacketsReceived     uint64 `json:"packets_received"`
	PacketsEchoed       uint64 `json:"packets_echoed"`
	PacketsDropped      uint64 `json:"packets_dropped"`
	ReceiveErrors       uint64 `json:"receive_errors"`
	SendErrors          uint64 `json:"send_errors"`
	TCPBytesReceived    uint64 `json:"tcp_bytes_received"`
	TCPBytesSent        uint64 `json:"tcp_bytes_sent"`
	UDPBytesReceived    uint64 `json:"udp_bytes_received"`
	UDPBytesSent        uint64 `json:"udp_bytes_sent"`
}

// Snapshot reads the current values of the collectors
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: value(m.ConnectionsAccepted),
		ActiveConnections:   value(m.ActiveConnections),
		ConnectionErrors:    value(m.ConnectionErrors),
		AcceptErrors:        value(m.AcceptErrors),
		Flushes:             value(m.Flushes),
		PacketsReceived:     value(m.PacketsReceived),
		PacketsEchoed:       value(m.PacketsEchoed),
		PacketsDropped:      value(m.PacketsDropped),
		ReceiveErrors:       value(m.ReceiveErrors),
		SendErrors:          value(m.SendErrors),
		TCPBytesReceived:    value(m.BytesReceived.WithLabelValues("tcp")),
		TCPBytesSent:        value(m.BytesSent.WithLabelValues("tcp")),
		UDPBytesReceived:    value(m.BytesReceived.WithLabelValues("udp")),
		UDPBytesSent:        value(m.BytesSent.WithLabelValues("udp")),
	}
}

func value(metric prometheus.Metric) uint64 {
	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0
	}
	if c := pb.GetCounter(); c != nil {
		return uint64(c.GetValue())
	}
	if g := pb.GetGauge(); g != nil && g.GetValue() > 0 {
		return uint64(g.GetValue())
	}
	return 0
}
