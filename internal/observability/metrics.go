// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values for operation metrics. Failure statuses use the
// lowercase error kind (e.g. "wrong_authority").
const (
	StatusSuccess = "success"
)

// Outcome label values for reconcile attempts.
const (
	OutcomeCommitted = "committed"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

// OperationsTotal counts ledger operations by operation and status.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blockstranding_operations_total",
		Help: "Total number of player operations by operation and status",
	},
	[]string{"operation", "status"},
)

// OperationDuration observes how long ledger operations take.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "blockstranding_operation_duration_seconds",
		Help:    "Player operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// AuthorityTransitions counts registry transitions by edge.
var AuthorityTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blockstranding_authority_transitions_total",
		Help: "Total number of authority marker transitions by edge",
	},
	[]string{"from", "to"},
)

// ReconcileAttempts counts snapshot fetch attempts during reconciliation.
var ReconcileAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blockstranding_reconcile_attempts_total",
		Help: "Total number of delegated snapshot fetch attempts by outcome",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers the ledger metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(AuthorityTransitions)
	reg.MustRegister(ReconcileAttempts)
}

// RecordOperation increments the operation counter and observes its duration.
func RecordOperation(operation, status string, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransition increments the transition counter for from→to.
func RecordTransition(from, to string) {
	AuthorityTransitions.WithLabelValues(from, to).Inc()
}

// RecordReconcileAttempt increments the reconcile attempt counter.
func RecordReconcileAttempt(outcome string) {
	ReconcileAttempts.WithLabelValues(outcome).Inc()
}
