package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus collectors for the bridge pipeline
type Metrics struct {
	registry *prometheus.Registry

	// UDP ingest
	DatagramsReceived prometheus.Counter
	DecodeErrors      *prometheus.CounterVec
	MessagesIngested  *prometheus.CounterVec
	ReceiveErrors     prometheus.Counter

	// Broadcast
	MessagesPublished prometheus.Counter
	SubscriberDrops   prometheus.Counter
	EncodeErrors      prometheus.Counter

	// WebSocket clients
	ActiveClients  prometheus.Gauge
	ClientsTotal   prometheus.Counter
	ClientsRefused prometheus.Counter
	FramesSent     prometheus.Counter
	SeedFramesSent prometheus.Counter

	// Command path
	CommandsForwarded *prometheus.CounterVec
	CommandsRejected  *prometheus.CounterVec
	EgressQueueDepth  prometheus.Gauge
	EgressSent        prometheus.Counter
	EgressErrors      prometheus.Counter
}

// New creates the collectors on a fresh registry so several bridges (tests)
// can live in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DatagramsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_udp_datagrams_received_total",
			Help: "Total number of UDP datagrams received from the realtime node",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "telemux_decode_errors_total",
			Help: "Total number of frames that failed to decode, by reason",
		}, []string{"reason"}),
		MessagesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "telemux_messages_ingested_total",
			Help: "Total number of decoded messages ingested, by kind",
		}, []string{"kind"}),
		ReceiveErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_udp_receive_errors_total",
			Help: "Total number of UDP socket receive errors",
		}),

		MessagesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_bus_published_total",
			Help: "Total number of messages published on the broadcast bus",
		}),
		SubscriberDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_bus_dropped_total",
			Help: "Total number of queued messages dropped for lagging subscribers",
		}),
		EncodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_encode_errors_total",
			Help: "Total number of messages that could not be encoded for a client",
		}),

		ActiveClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "telemux_active_clients",
			Help: "Current number of connected viewer clients",
		}),
		ClientsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_clients_total",
			Help: "Total number of viewer clients accepted",
		}),
		ClientsRefused: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_clients_refused_total",
			Help: "Total number of viewer clients refused at the client limit",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_frames_sent_total",
			Help: "Total number of live messages written to viewer clients",
		}),
		SeedFramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_seed_frames_sent_total",
			Help: "Total number of cached frames written to newly connected clients",
		}),

		CommandsForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "telemux_commands_forwarded_total",
			Help: "Total number of client frames queued for the realtime node, by kind tag",
		}, []string{"kind"}),
		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "telemux_commands_rejected_total",
			Help: "Total number of client frames refused by the egress queue, by reason",
		}, []string{"reason"}),
		EgressQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "telemux_egress_queue_depth",
			Help: "Current number of frames waiting in the egress queue",
		}),
		EgressSent: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_egress_sent_total",
			Help: "Total number of UDP datagrams sent to the realtime node",
		}),
		EgressErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "telemux_egress_errors_total",
			Help: "Total number of failed UDP sends to the realtime node",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests and embedding
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Record methods are no-ops on a nil *Metrics so transports work standalone.
func (m *Metrics) RecordDatagram() {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
}

func (m *Metrics) RecordDecodeError(reason string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordIngest(kind string) {
	if m == nil {
		return
	}
	m.MessagesIngested.WithLabelValues(kind).Inc()
	m.MessagesPublished.Inc()
}

func (m *Metrics) RecordReceiveError() {
	if m == nil {
		return
	}
	m.ReceiveErrors.Inc()
}

func (m *Metrics) RecordDrops(n int) {
	if m == nil {
		return
	}
	m.SubscriberDrops.Add(float64(n))
}

func (m *Metrics) RecordEncodeError() {
	if m == nil {
		return
	}
	m.EncodeErrors.Inc()
}

func (m *Metrics) RecordClientConnected() {
	if m == nil {
		return
	}
	m.ClientsTotal.Inc()
	m.ActiveClients.Inc()
}

func (m *Metrics) RecordClientDisconnected() {
	if m == nil {
		return
	}
	m.ActiveClients.Dec()
}

func (m *Metrics) RecordClientRefused() {
	if m == nil {
		return
	}
	m.ClientsRefused.Inc()
}

func (m *Metrics) RecordFrameSent(seed bool) {
	if m == nil {
		return
	}
	if seed {
		m.SeedFramesSent.Inc()
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) RecordCommandForwarded(kind string, depth int) {
	if m == nil {
		return
	}
	m.CommandsForwarded.WithLabelValues(kind).Inc()
	m.EgressQueueDepth.Set(float64(depth))
}

func (m *Metrics) RecordCommandRejected(reason string) {
	if m == nil {
		return
	}
	m.CommandsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordEgressSent(depth int) {
	if m == nil {
		return
	}
	m.EgressSent.Inc()
	m.EgressQueueDepth.Set(float64(depth))
}

func (m *Metrics) RecordEgressError(depth int) {
	if m == nil {
		return
	}
	m.EgressErrors.Inc()
	m.EgressQueueDepth.Set(float64(depth))
}
