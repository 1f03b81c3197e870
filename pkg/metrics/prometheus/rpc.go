// Package prometheus implements the metrics interfaces on top of the
// global Prometheus registry.
package prometheus

import (
	"time"

	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	callsTotal        *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
}

// NewRPCMetrics creates a Prometheus-backed RPCMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewRPCMetrics() metrics.RPCMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopRPCMetrics()
	}
	return newRPCMetrics(metrics.GetRegistry())
}

func newRPCMetrics(reg prometheus.Registerer) *rpcMetrics {
	return &rpcMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_calls_total",
				Help: "Total number of ONC RPC calls by program, procedure and status",
			},
			[]string{"program", "procedure", "status"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vxi11_rpc_call_duration_milliseconds",
				Help: "Round-trip time of ONC RPC calls in milliseconds",
				Buckets: []float64{
					0.5,   // loopback
					2,     // LAN
					10,    // LAN-to-GPIB gateway
					100,   // slow measurement
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"program", "procedure"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_bytes_total",
				Help: "Record-marked bytes sent and received",
			},
			[]string{"program", "direction"},
		),
		activeConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vxi11_rpc_active_connections",
				Help: "Current number of open RPC connections",
			},
			[]string{"program"},
		),
		connectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_connections_total",
				Help: "Total number of RPC connections opened",
			},
			[]string{"program"},
		),
	}
}

func (m *rpcMetrics) RecordCall(program, procedure string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.callsTotal.WithLabelValues(program, procedure, status).Inc()
	m.callDuration.WithLabelValues(program, procedure).Observe(duration.Seconds() * 1000)
}

func (m *rpcMetrics) RecordBytesTransferred(program, direction string, bytes int) {
	m.bytesTransferred.WithLabelValues(program, direction).Add(float64(bytes))
}

func (m *rpcMetrics) RecordConnectionOpened(program string) {
	m.connectionsTotal.WithLabelValues(program).Inc()
	m.activeConnections.WithLabelValues(program).Inc()
}

func (m *rpcMetrics) RecordConnectionClosed(program string) {
	m.activeConnections.WithLabelValues(program).Dec()
}
