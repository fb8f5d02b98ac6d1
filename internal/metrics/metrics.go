package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	actionsSuggestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_actions_suggested_total",
		Help: "Total number of remediation actions suggested",
	}, []string{"type"})
	actionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_action_transitions_total",
		Help: "Transition attempts on action records by operation and outcome",
	}, []string{"type", "operation", "outcome"})
	effectorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_effector_duration_seconds",
		Help:    "Time spent in effector and compensator calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"type", "operation"})
	actionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_actions_expired_total",
		Help: "Total number of pending actions expired by the sweeper",
	})
	gateBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_gate_blocked_requests_total",
		Help: "Requests rejected by an active block decision",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(actionsSuggestedTotal, actionTransitionsTotal, effectorDuration, actionsExpiredTotal, gateBlockedTotal)
}

// IncSuggested increments the suggested actions counter.
func IncSuggested(actionType string) { actionsSuggestedTotal.WithLabelValues(actionType).Inc() }

// IncTransition counts a transition attempt.
func IncTransition(actionType, operation, outcome string) {
	actionTransitionsTotal.WithLabelValues(actionType, operation, outcome).Inc()
}

// ObserveEffector records how long an effector or compensator call took.
func ObserveEffector(actionType, operation string, d time.Duration) {
	effectorDuration.WithLabelValues(actionType, operation).Observe(d.Seconds())
}

// IncExpired increments the expired actions counter.
func IncExpired() { actionsExpiredTotal.Inc() }

// IncGateBlocked counts a request rejected by the gate.
func IncGateBlocked() { gateBlockedTotal.Inc() }
