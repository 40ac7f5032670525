package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "paperdrop"

// Metrics owns a private registry so tests can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	connectedDevices prometheus.Gauge
	dispatchTotal    *prometheus.CounterVec
	handshakeTotal   *prometheus.CounterVec
	inboundTotal     *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	tickCandidates   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_devices",
			Help:      "Number of devices with a registered socket session.",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Envelopes pushed to devices by type and outcome.",
		}, []string{"type", "result"}),
		handshakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_total",
			Help:      "Device handshakes by outcome.",
		}, []string{"result"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Frames received from devices by type and outcome.",
		}, []string{"type", "result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redelivery",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one redelivery scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		tickCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redelivery",
			Name:      "candidates_total",
			Help:      "Scheduled messages processed by outcome.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectedDevices,
		m.dispatchTotal,
		m.handshakeTotal,
		m.inboundTotal,
		m.tickDuration,
		m.tickCandidates,
	)
	return m
}

func (m *Metrics) SetConnectedDevices(n int) { m.connectedDevices.Set(float64(n)) }

func (m *Metrics) ObserveDispatch(envelopeType, result string) {
	m.dispatchTotal.WithLabelValues(envelopeType, result).Inc()
}

func (m *Metrics) ObserveHandshake(result string) {
	m.handshakeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInbound(envelopeType, result string) {
	m.inboundTotal.WithLabelValues(envelopeType, result).Inc()
}

func (m *Metrics) ObserveTick(seconds float64) { m.tickDuration.Observe(seconds) }

func (m *Metrics) ObserveCandidate(result string) {
	m.tickCandidates.WithLabelValues(result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
