// Package observability bundles tracing and metrics setup. This file
// defines the domain-level Prometheus collectors shared by the orchestrator
// and the bridge matcher; HTTP-level metrics live in the middleware.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// MissionTransitions counts performed state transitions by target state.
	// Only the caller that wins a conditional transition increments it, so
	// the counter doubles as a check on the exactly-once lock guarantee.
	MissionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_transitions_total",
			Help: "Total number of mission state transitions performed.",
		},
		[]string{"to_state"},
	)

	// RecapFallbacks counts recaps that used the deterministic fallback
	// because the external generator failed, timed out, or was absent.
	RecapFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recap_fallbacks_total",
			Help: "Total number of recaps produced via the fallback path.",
		},
	)

	// BridgeMatches counts newly recorded mission-pair bridge events.
	// Idempotent re-evaluations do not increment it.
	BridgeMatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_matches_total",
			Help: "Total number of new cross-chain bridge matches recorded.",
		},
	)
)

func init() {
	prometheus.MustRegister(MissionTransitions, RecapFallbacks, BridgeMatches)
}
