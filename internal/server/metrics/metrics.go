// Package metrics owns the Prometheus collectors of the server. Every
// instance has its own registry, so tests and multiple servers never share
// counters.
package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ResultSuccess labels auth events that completed without error.
const ResultSuccess = "success"

// Metrics is the set of server collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	authEvents   *prometheus.CounterVec
	resetSwept   prometheus.Counter
	httpRequests *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_auth_events_total",
				Help: "Total number of auth operations by outcome",
			},
			[]string{"operation", "result"},
		),
		resetSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authkeeper_reset_tokens_swept_total",
				Help: "Total number of expired password reset tokens deleted",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	m.registry.MustRegister(
		m.authEvents,
		m.resetSwept,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAuthEvent counts one auth operation. The result label is
// ResultSuccess for a nil error and the lower-cased error kind otherwise.
func (m *Metrics) RecordAuthEvent(operation string, err error) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(operation, ResultOf(err)).Inc()
}

// RecordResetTokensSwept adds n deleted reset tokens.
func (m *Metrics) RecordResetTokensSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.resetSwept.Add(float64(n))
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ResultOf maps an error to its result label.
func ResultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return strings.ToLower(common.KindOf(err).String())
}
