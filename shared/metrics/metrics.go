// Package metrics holds the prometheus collectors for account operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics contains the user-service counters.
type Metrics struct {
	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	KeyRotations  *prometheus.CounterVec
	InvokeLookups *prometheus.CounterVec
	registry      *prometheus.Registry
}

// New creates a registry with the Go/process collectors plus the account counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbapi_logins_total",
			Help: "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbapi_registrations_total",
			Help: "Registration attempts by method and outcome",
		}, []string{"method", "outcome"}),
		KeyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbapi_key_rotations_total",
			Help: "Access/secret key rotations by outcome",
		}, []string{"outcome"}),
		InvokeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbapi_invoke_lookups_total",
			Help: "Inter-service user lookups by access key, by result",
		}, []string{"result"}),
		registry: reg,
	}

	reg.MustRegister(m.Logins, m.Registrations, m.KeyRotations, m.InvokeLookups)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
