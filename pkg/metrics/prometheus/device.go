package prometheus

import (
	"time"

	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// deviceMetrics is the Prometheus implementation of metrics.DeviceMetrics.
type deviceMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	messageBytes      *prometheus.HistogramVec
	chunksTotal       *prometheus.CounterVec
	deviceErrors      *prometheus.CounterVec
	activeLinks       prometheus.Gauge
}

// NewDeviceMetrics creates a Prometheus-backed DeviceMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewDeviceMetrics() metrics.DeviceMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDeviceMetrics()
	}
	return newDeviceMetrics(metrics.GetRegistry())
}

func newDeviceMetrics(reg prometheus.Registerer) *deviceMetrics {
	return &deviceMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_operations_total",
				Help: "Total number of device operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vxi11_device_operation_duration_milliseconds",
				Help:    "Duration of device operations in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			[]string{"operation"},
		),
		messageBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vxi11_device_message_bytes",
				Help: "Size of logical messages written and read",
				Buckets: []float64{
					64,      // SCPI command
					1024,    // 1KB
					16384,   // one chunk
					1048576, // waveform
				},
			},
			[]string{"direction"},
		),
		chunksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_chunks_total",
				Help: "DEVICE_WRITE and DEVICE_READ calls issued for logical messages",
			},
			[]string{"direction"},
		),
		deviceErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_errors_total",
				Help: "Non-zero device error codes returned by the instrument",
			},
			[]string{"code"},
		),
		activeLinks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "vxi11_device_active_links",
				Help: "Current number of open device links",
			},
		),
	}
}

func (m *deviceMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *deviceMetrics) RecordTransfer(direction string, bytes int, chunks int) {
	m.messageBytes.WithLabelValues(direction).Observe(float64(bytes))
	m.chunksTotal.WithLabelValues(direction).Add(float64(chunks))
}

func (m *deviceMetrics) RecordDeviceError(code string) {
	m.deviceErrors.WithLabelValues(code).Inc()
}

func (m *deviceMetrics) AddActiveLinks(delta int) {
	m.activeLinks.Add(float64(delta))
}
