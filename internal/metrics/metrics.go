package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login results used as the "result" label.
const (
	LoginSuccess      = "success"
	LoginUnauthorized = "unauthorized"
	LoginInactive     = "inactive"
	LoginRateLimited  = "rate_limited"
	LoginError        = "error"
)

// Metrics holds the auth counters. A nil *Metrics records nothing, so
// services can run without a registry in tests.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	TokensIssued       prometheus.Counter
	ValidationFailures *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the counters on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration on the global registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_login_attempts_total",
				Help: "Sign-in attempts by outcome.",
			},
			[]string{"result"},
		),
		TokensIssued: f.NewCounter(
			prometheus.CounterOpts{
				Name: "identity_tokens_issued_total",
				Help: "Access tokens minted.",
			},
		),
		ValidationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_token_validation_failures_total",
				Help: "Bearer tokens rejected, by reason.",
			},
			[]string{"reason"},
		),
		gatherer: reg,
	}
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

func (m *Metrics) RecordValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
