// Package metrics exposes the server's space-accounting and transfer
// counters as Prometheus collectors, built on client_golang's
// Counter/Gauge primitives: space and served-file gauges, active
// transfers, bytes sent/received, and counts of transfers started,
// failed and timed out and of protocol errors. There are no
// retransmission or NACK counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server aggregates every Prometheus collector the dispatcher and its
// transfer workers update.
type Server struct {
	AvailableSpace  prometheus.Gauge
	NegativeSpace   prometheus.Gauge
	ServedFiles     prometheus.Gauge
	ActiveTransfers prometheus.Gauge

	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter

	TransfersStarted prometheus.Counter
	TransfersFailed  prometheus.Counter
	Timeouts         prometheus.Counter
	ProtocolErrors   prometheus.Counter

	registry *prometheus.Registry
}

// New builds a fresh metrics registry and the collectors above.
func New() *Server {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Server{
		AvailableSpace:   f.NewGauge(prometheus.GaugeOpts{Name: "groupfiled_available_space_bytes", Help: "Bytes of advertised space still free for uploads."}),
		NegativeSpace:    f.NewGauge(prometheus.GaugeOpts{Name: "groupfiled_negative_space_bytes", Help: "Bytes by which on-disk inventory exceeds configured maximum."}),
		ServedFiles:      f.NewGauge(prometheus.GaugeOpts{Name: "groupfiled_served_files", Help: "Number of files currently advertised."}),
		ActiveTransfers:  f.NewGauge(prometheus.GaugeOpts{Name: "groupfiled_active_transfers", Help: "Number of transfer workers currently running."}),
		BytesSent:        f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_bytes_sent_total", Help: "Total bytes streamed to peers."}),
		BytesReceived:    f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_bytes_received_total", Help: "Total bytes received from peers."}),
		TransfersStarted: f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_transfers_started_total", Help: "Total transfer workers spawned."}),
		TransfersFailed:  f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_transfers_failed_total", Help: "Total transfer workers that exited on error."}),
		Timeouts:         f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_handshake_timeouts_total", Help: "Total transfer handshakes that timed out waiting for a peer."}),
		ProtocolErrors:   f.NewCounter(prometheus.CounterOpts{Name: "groupfiled_protocol_errors_total", Help: "Total malformed or rejected datagrams seen by the dispatcher."}),
		registry:         reg,
	}
}

// Handler returns the HTTP handler serving this registry in Prometheus
// exposition format, to be mounted at "/metrics".
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing /metrics. It blocks
// until the listener errors or is closed; callers typically run it in
// a goroutine.
func (s *Server) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	return http.ListenAndServe(addr, mux)
}
