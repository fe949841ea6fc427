package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusid_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_logins_total",
		Help: "Login attempts by credential source and result",
	}, []string{"source", "result"})

	backendFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_backend_fallbacks_total",
		Help: "Store operations served by the fallback backend",
	}, []string{"operation"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "campusid_backend_breaker_state",
		Help: "Circuit breaker state of the primary backend (0 closed, 1 half-open, 2 open)",
	}, []string{"backend"})

	backendUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "campusid_backend_up",
		Help: "Whether the last probe of a backend succeeded (1 up, 0 down)",
	}, []string{"backend"})

	backendProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusid_backend_probe_duration_seconds",
		Help:    "Duration of backend probes",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2},
	}, []string{"backend"})

	uniquenessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_uniqueness_checks_total",
		Help: "Uniqueness checks by collection and outcome (unique, conflict, fail_open, fail_closed)",
	}, []string{"collection", "outcome"})

	formValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_form_validations_total",
		Help: "Form validations by form and result",
	}, []string{"form", "result"})

	roleSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusid_role_switches_total",
		Help: "Role switch requests by target role and result",
	}, []string{"role", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt; source is primary, directory or none.
func ObserveLogin(source string, ok bool) {
	logins.WithLabelValues(source, result(ok)).Inc()
}

// ObserveBackendFallback counts a store operation rerouted to the fallback backend.
func ObserveBackendFallback(operation string) {
	backendFallbacks.WithLabelValues(operation).Inc()
}

// SetBreakerState publishes the breaker state as a gauge value.
func SetBreakerState(backend string, state int) {
	breakerState.WithLabelValues(backend).Set(float64(state))
}

// ObserveBackendProbe records the outcome of a periodic backend ping
func ObserveBackendProbe(backend string, up bool, duration time.Duration) {
	v := 0.0
	if up {
		v = 1
	}
	backendUp.WithLabelValues(backend).Set(v)
	backendProbeDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveUniquenessCheck counts a uniqueness check outcome.
func ObserveUniquenessCheck(collection, outcome string) {
	uniquenessChecks.WithLabelValues(collection, outcome).Inc()
}

// ObserveFormValidation counts a composite form validation.
func ObserveFormValidation(form string, ok bool) {
	formValidations.WithLabelValues(form, result(ok)).Inc()
}

// ObserveRoleSwitch counts a role switch request.
func ObserveRoleSwitch(role string, ok bool) {
	roleSwitches.WithLabelValues(role, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
