// Package observability provides Prometheus metrics for the HTTP servers.
//
// Every server owns its own registry so several servers can live in one
// process (and in one test binary) without duplicate registration panics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exposed by a server.
type Metrics struct {
	registry *prometheus.Registry

	// FraudChecks counts name checks by verdict ("fraud" or "ok").
	FraudChecks *prometheus.CounterVec

	// StubRequests counts stub runner requests by contract and match result.
	StubRequests *prometheus.CounterVec

	// Verifications counts verified contracts by outcome ("passed" or "failed").
	Verifications *prometheus.CounterVec
}

// New creates a registry with the Go runtime and process collectors plus the
// application counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		FraudChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractkit_fraud_name_checks_total",
				Help: "Total number of fraud checks by name, by verdict",
			},
			[]string{"verdict"},
		),
		StubRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractkit_stub_requests_total",
				Help: "Total number of requests served by the stub runner",
			},
			[]string{"contract", "matched"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractkit_verifications_total",
				Help: "Total number of contract verifications, by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FraudChecks,
		m.StubRequests,
		m.Verifications,
	)
	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
