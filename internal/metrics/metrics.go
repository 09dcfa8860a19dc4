// Package metrics exposes Prometheus counters for the discovery, delivery
// and relay paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lanchat"

// Result labels for outbound sends.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	// Discovery
	AnnouncementsSent     prometheus.Counter
	AnnouncementsReceived *prometheus.CounterVec
	PeersKnown            prometheus.Gauge

	// Transport
	SendsTotal    *prometheus.CounterVec
	SendDuration  prometheus.Histogram
	BytesSent     prometheus.Counter
	ChunksInbound *prometheus.CounterVec
	BytesInbound  prometheus.Counter

	// Relay
	RelayClients   prometheus.Gauge
	RelayForwarded prometheus.Counter
}

// New creates metrics on their own registry together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AnnouncementsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "announcements_sent_total",
			Help:      "Presence announcements sent",
		}),
		AnnouncementsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "announcements_received_total",
			Help:      "Presence announcements received by outcome",
		}, []string{"outcome"}),
		PeersKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "peers_known",
			Help:      "Number of peers in the directory",
		}),

		SendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Outbound one-shot sends by result",
		}, []string{"result"}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Time from dial to close of an outbound send",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_sent_total",
			Help:      "Payload bytes written by successful sends",
		}),
		ChunksInbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "chunks_total",
			Help:      "Inbound chunks surfaced by listener",
		}, []string{"listener"}),
		BytesInbound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "bytes_total",
			Help:      "Inbound payload bytes",
		}),

		RelayClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Connected relay clients",
		}),
		RelayForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "forwarded_total",
			Help:      "Forwarded file payload writes to relay clients",
		}),
	}
}

func (m *Metrics) RecordAnnouncementSent() {
	if m == nil {
		return
	}
	m.AnnouncementsSent.Inc()
}

// RecordAnnouncement counts a received datagram. outcome is one of
// "accepted", "self", "ignored", "invalid" or "malformed".
func (m *Metrics) RecordAnnouncement(outcome string) {
	if m == nil {
		return
	}
	m.AnnouncementsReceived.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPeersKnown(n int) {
	if m == nil {
		return
	}
	m.PeersKnown.Set(float64(n))
}

func (m *Metrics) RecordSend(err error, size int, duration time.Duration) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(duration.Seconds())
	if err != nil {
		m.SendsTotal.WithLabelValues(ResultFailed).Inc()
		return
	}
	m.SendsTotal.WithLabelValues(ResultOK).Inc()
	m.BytesSent.Add(float64(size))
}

func (m *Metrics) RecordChunk(listener string, size int) {
	if m == nil {
		return
	}
	m.ChunksInbound.WithLabelValues(listener).Inc()
	m.BytesInbound.Add(float64(size))
}

func (m *Metrics) SetRelayClients(n int) {
	if m == nil {
		return
	}
	m.RelayClients.Set(float64(n))
}

func (m *Metrics) RecordRelayForward(writes int) {
	if m == nil {
		return
	}
	m.RelayForwarded.Add(float64(writes))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Server exposes /metrics and /health over HTTP.
type Server struct {
	server *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
