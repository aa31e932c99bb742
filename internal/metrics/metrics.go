package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	rooms       prometheus.Gauge
	connections prometheus.Gauge
	inbound     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	matches     prometheus.Counter
	aborts      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobby", Name: "rooms_active",
			Help: "Rooms currently registered.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobby", Name: "connections_active",
			Help: "Open client connections.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby", Name: "messages_inbound_total",
			Help: "Decoded client messages by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby", Name: "messages_dropped_total",
			Help: "Client messages dropped without a reply.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobby", Name: "fanout_deliveries_total",
			Help: "Per-connection delivery outcomes.",
		}, []string{"result"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lobby", Name: "matches_started_total",
			Help: "Rooms that reached the active phase.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lobby", Name: "rooms_aborted_total",
			Help: "Rooms aborted for lack of players.",
		}),
	}
	m.reg.MustRegister(
		m.rooms, m.connections, m.inbound, m.dropped, m.deliveries, m.matches, m.aborts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Inbound(msgType string) {
	if m != nil {
		m.inbound.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Delivery(result string) {
	if m != nil {
		m.deliveries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) MatchStarted() {
	if m != nil {
		m.matches.Inc()
	}
}

func (m *Metrics) RoomAborted() {
	if m != nil {
		m.aborts.Inc()
	}
}
