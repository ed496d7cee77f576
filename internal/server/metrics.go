package server

import (
	"net/http"

	"ggloracle/internal/oracle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scoreBuckets sit on the score values the pipeline can actually produce.
var scoreBuckets = []float64{0, 0.05, 0.10, 0.25, 0.60, 0.90, 1.0}

// Metrics holds the server's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	verifyTotal *prometheus.CounterVec
	verifyScore prometheus.Histogram
	cachedTotal prometheus.Counter
	abiInfo     *prometheus.GaugeVec
}

// NewMetrics registers the oracle collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ggl",
			Name:      "verify_total",
			Help:      "Verifications by final stage and code.",
		}, []string{"stage", "code"}),
		verifyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ggl",
			Name:      "verify_score",
			Help:      "Distribution of verification scores.",
			Buckets:   scoreBuckets,
		}),
		cachedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ggl",
			Name:      "verify_cached_total",
			Help:      "Verifications answered from the ledger.",
		}),
		abiInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ggl",
			Name:      "abi_info",
			Help:      "Set to 1 for the ABI hash currently served.",
		}, []string{"hash"}),
	}
	m.registry.MustRegister(m.verifyTotal, m.verifyScore, m.cachedTotal, m.abiInfo)
	return m
}

// Observe records one verdict.
func (m *Metrics) Observe(r oracle.Result, cached bool) {
	m.verifyTotal.WithLabelValues(r.Stage.String(), r.Code).Inc()
	m.verifyScore.Observe(r.Score)
	if cached {
		m.cachedTotal.Inc()
	}
}

// SetABI marks hash as the served ABI.
func (m *Metrics) SetABI(hash string) {
	m.abiInfo.Reset()
	m.abiInfo.WithLabelValues(hash).Set(1)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
