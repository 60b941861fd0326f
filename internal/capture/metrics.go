package capture

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the capture pipeline.
type Metrics struct {
	registry         *prometheus.Registry
	capturesTotal    *prometheus.CounterVec
	parseFailures    *prometheus.CounterVec
	unsupportedTotal prometheus.Counter
	disabledTotal    *prometheus.CounterVec
	storeErrors      prometheus.Counter
	rateLimited      prometheus.Counter
	wsClients        prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		capturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "captures_total",
			Help:      "Captured payloads that produced at least one record",
		}, []string{"platform", "endpoint"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "parse_failures_total",
			Help:      "Captured payloads that produced no records",
		}, []string{"platform", "endpoint"}),
		unsupportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "unsupported_urls_total",
			Help:      "Captures whose URL no adapter claims",
		}),
		disabledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "disabled_platform_total",
			Help:      "Captures dropped because the platform is disabled by rules",
		}, []string{"platform"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "store_write_errors_total",
			Help:      "Number of store write errors reported",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatvault",
			Name:      "rate_limited_total",
			Help:      "Capture requests rejected due to rate limiting",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatvault",
			Name:      "ws_clients",
			Help:      "Current connected capture WebSocket clients",
		}),
	}

	registry.MustRegister(
		m.capturesTotal,
		m.parseFailures,
		m.unsupportedTotal,
		m.disabledTotal,
		m.storeErrors,
		m.rateLimited,
		m.wsClients,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCaptures(platform, endpoint string) {
	if m == nil {
		return
	}
	m.capturesTotal.WithLabelValues(platform, endpoint).Inc()
}

func (m *Metrics) IncParseFailures(platform, endpoint string) {
	if m == nil {
		return
	}
	m.parseFailures.WithLabelValues(platform, endpoint).Inc()
}

func (m *Metrics) IncUnsupported() {
	if m == nil {
		return
	}
	m.unsupportedTotal.Inc()
}

func (m *Metrics) IncDisabled(platform string) {
	if m == nil {
		return
	}
	m.disabledTotal.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncStoreErrors() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncWSClients adjusts the WebSocket client gauge by delta.
func (m *Metrics) IncWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}
