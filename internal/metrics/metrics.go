// Package metrics holds the Prometheus collectors exported by tessera.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	authOps       *prometheus.CounterVec
	verifications *prometheus.CounterVec
	ledgerSwept   prometheus.Counter
	httpInFlight  prometheus.Gauge
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Metrics, error) {
	m := &Metrics{
		gatherer: gatherer,
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "auth_operations_total",
			Help:      "Authentication operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "token_verifications_total",
			Help:      "Token verifications by token type and outcome.",
		}, []string{"type", "outcome"}),
		ledgerSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "ledger_swept_total",
			Help:      "Expired refresh tokens removed from the ledger.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tessera",
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tessera",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	for _, c := range []prometheus.Collector{m.authOps, m.verifications, m.ledgerSwept, m.httpInFlight, m.httpDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewRegistry creates Metrics on a fresh registry
func NewRegistry() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

// AuthOp counts one register, login, refresh, logout or transfer attempt
func (m *Metrics) AuthOp(op string, err error) {
	if m == nil {
		return
	}
	m.authOps.WithLabelValues(op, outcome(err)).Inc()
}

// Verification counts one token verification
func (m *Metrics) Verification(tokenType string, err error) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(tokenType, outcome(err)).Inc()
}

// LedgerSwept adds n removed ledger entries
func (m *Metrics) LedgerSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerSwept.Add(float64(n))
}

// RequestStarted tracks an in-flight request and returns the func that finishes it
func (m *Metrics) RequestStarted() func(method, route, status string, seconds float64) {
	if m == nil {
		return func(string, string, string, float64) {}
	}
	m.httpInFlight.Inc()
	return func(method, route, status string, seconds float64) {
		m.httpInFlight.Dec()
		m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
