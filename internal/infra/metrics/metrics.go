// Package metrics exposes Prometheus instruments for pairing and setup.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devicepair_codes_issued_total",
		Help: "Total number of pairing codes issued by the backend",
	})

	IssueFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devicepair_issue_failures_total",
		Help: "Total number of failed pairing code issuance attempts",
	})

	PollTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicepair_poll_ticks_total",
		Help: "Activation poll ticks by result (paired, pending, expired, error)",
	}, []string{"result"})

	PairingOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicepair_pairing_outcomes_total",
		Help: "Pairing cycle outcomes (success, restart, aborted, ended)",
	}, []string{"outcome"})

	WizardTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicepair_wizard_transitions_total",
		Help: "Setup wizard state transitions by target state",
	}, []string{"state"})

	setupState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devicepair_setup_state",
		Help: "Current setup wizard state (active state=1, others 0)",
	}, []string{"state"})

	BackendCircuitTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devicepair_backend_circuit_trips_total",
		Help: "Total number of backend circuit breaker transitions to open",
	})
)

// RecordPollTick counts one activation attempt.
func RecordPollTick(result string) {
	if result == "" {
		result = "unknown"
	}
	PollTicksTotal.WithLabelValues(result).Inc()
}

// RecordOutcome counts a terminal pairing outcome.
func RecordOutcome(outcome string) {
	PairingOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SetSetupState marks state as the single active setup state.
func SetSetupState(state string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1.0
		}
		setupState.WithLabelValues(s).Set(value)
	}
	WizardTransitionsTotal.WithLabelValues(state).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
