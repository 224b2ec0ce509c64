package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHook implements ConnectionLifecycleHook, CommandHook, and PipelineHook by updating
// collectors registered against a single Prometheus registry.
type PrometheusHook struct {
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	connectionErrors  prometheus.Counter
	commands          *prometheus.CounterVec
	failures          *prometheus.CounterVec
	stageLatency      *prometheus.HistogramVec
	resolveLatency    prometheus.Histogram
}

// NewPrometheusHook creates the collectors and registers them with reg.
func NewPrometheusHook(reg prometheus.Registerer) (*PrometheusHook, error) {
	h := &PrometheusHook{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtastsd_connections_opened_total",
			Help: "Client connections accepted.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtastsd_connections_closed_total",
			Help: "Client connections closed.",
		}),
		connectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtastsd_connection_errors_total",
			Help: "Errors accepting client connections.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtastsd_commands_total",
			Help: "Commands dispatched, by command name.",
		}, []string{"command"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtastsd_pipeline_failures_total",
			Help: "Policy resolutions that ended in failure, by failure kind.",
		}, []string{"kind"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mtastsd_pipeline_stage_duration_seconds",
			Help:    "Duration of each policy resolution stage.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtastsd_pipeline_duration_seconds",
			Help:    "Duration of successful policy resolutions.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}

	collectors := []prometheus.Collector{
		h.connectionsOpened,
		h.connectionsClosed,
		h.connectionErrors,
		h.commands,
		h.failures,
		h.stageLatency,
		h.resolveLatency,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// EmitConnectionOpen Prometheus implementation
func (h *PrometheusHook) EmitConnectionOpen(addr net.Addr) {
	h.connectionsOpened.Inc()
}

// EmitConnectionClose Prometheus implementation
func (h *PrometheusHook) EmitConnectionClose(addr net.Addr) {
	h.connectionsClosed.Inc()
}

// EmitConnectionError Prometheus implementation
func (h *PrometheusHook) EmitConnectionError() {
	h.connectionErrors.Inc()
}

// EmitCommand Prometheus implementation
func (h *PrometheusHook) EmitCommand(command string, addr net.Addr) {
	h.commands.WithLabelValues(command).Inc()
}

// EmitStageLatency Prometheus implementation
func (h *PrometheusHook) EmitStageLatency(stage string, latency time.Duration) {
	h.stageLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// EmitFailure Prometheus implementation
func (h *PrometheusHook) EmitFailure(kind string) {
	h.failures.WithLabelValues(kind).Inc()
}

// EmitSuccess Prometheus implementation
func (h *PrometheusHook) EmitSuccess(latency time.Duration) {
	h.resolveLatency.Observe(latency.Seconds())
}

// NewPrometheusHandler returns an HTTP handler exposing the metrics gathered by g.
func NewPrometheusHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return mux
}
