// Package metrics declares Prometheus series for the trade lifecycle,
// grounded on the teacher's internal/bot metrics.go (same promauto wiring,
// same namespace/subsystem convention). The series register with the default
// registry only when this package is imported; no package in this repository
// imports it, so the health surface's /metrics endpoint does not serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Job queue ============

// JobQueueDepth is the current count of PENDING trade_jobs rows by action.
var JobQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "raptor",
		Subsystem: "queue",
		Name:      "job_depth",
		Help:      "Current number of pending trade jobs",
	},
	[]string{"action"}, // buy, sell
)

// JobsProcessed counts completed claim attempts by terminal outcome.
var JobsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "queue",
		Name:      "jobs_processed_total",
		Help:      "Total number of trade jobs that reached a terminal state",
	},
	[]string{"action", "result"}, // result: completed, failed
)

// LeaseContention counts SKIP LOCKED claims that returned fewer rows than
// requested because other workers held the remainder.
var LeaseContention = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "queue",
		Name:      "lease_contention_total",
		Help:      "Number of claim cycles that found locked rows held by other workers",
	},
	[]string{"table"}, // trade_jobs, notifications_outbox
)

// ============ Triggers & exits ============

// TriggerLatency measures time from price update to a won trigger_exit_atomically claim.
var TriggerLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "raptor",
		Subsystem: "monitor",
		Name:      "trigger_latency_ms",
		Help:      "Time from price observation to trigger claim in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"trigger"}, // TP, SL, TRAIL, MAXHOLD, EMERGENCY
)

// TriggersFired counts won trigger claims by kind.
var TriggersFired = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "monitor",
		Name:      "triggers_fired_total",
		Help:      "Number of positions whose trigger_exit_atomically claim succeeded",
	},
	[]string{"trigger"},
)

// ExitQueueDepth is the Exit Queue's in-process heap size.
var ExitQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "raptor",
		Subsystem: "exitqueue",
		Name:      "depth",
		Help:      "Current number of exit triggers queued for dispatch",
	},
)

// ExitQueueSaturated reports the backpressure latch state (1=saturated).
var ExitQueueSaturated = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "raptor",
		Subsystem: "exitqueue",
		Name:      "saturated",
		Help:      "1 if the exit queue is above its high-water mark, else 0",
	},
)

// ============ Router ============

// RouterConfirmLatency measures time from tx submission to on-chain confirmation.
var RouterConfirmLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "raptor",
		Subsystem: "router",
		Name:      "confirm_latency_ms",
		Help:      "Time from transaction submission to confirmation in milliseconds",
		Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	},
	[]string{"venue", "side"}, // venue: bonding_curve, aggregator
)

// SwapsExecuted counts router Execute calls by venue and outcome.
var SwapsExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "router",
		Name:      "swaps_executed_total",
		Help:      "Total number of swaps executed by venue and result",
	},
	[]string{"venue", "side", "result"}, // result: confirmed, failed
)

// ============ Outbox ============

// OutboxLagSeconds is the age of the oldest undelivered notification.
var OutboxLagSeconds = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "raptor",
		Subsystem: "outbox",
		Name:      "lag_seconds",
		Help:      "Age in seconds of the oldest pending or retrying notification",
	},
)

// NotificationsDelivered counts outbox deliveries by outcome.
var NotificationsDelivered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "outbox",
		Name:      "notifications_total",
		Help:      "Total number of notification delivery attempts",
	},
	[]string{"type", "result"}, // result: delivered, failed
)

// ============ Budget & safety ============

// BudgetDenials counts reserve_trade_budget rejections by reason.
var BudgetDenials = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "raptor",
		Subsystem: "budget",
		Name:      "denials_total",
		Help:      "Total number of budget reservations denied, by reason",
	},
	[]string{"reason"}, // cap_exceeded, cooldown, circuit_open, trading_paused, blacklisted
)

// CircuitBreakerOpen reports the circuit breaker's current state (1=open) per chain.
var CircuitBreakerOpen = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "raptor",
		Subsystem: "budget",
		Name:      "circuit_breaker_open",
		Help:      "1 if the circuit breaker is open for a chain, else 0",
	},
	[]string{"chain"},
)

// RecordTrigger records a won trigger claim and its latency together.
func RecordTrigger(trigger string, latencyMs float64) {
	TriggersFired.WithLabelValues(trigger).Inc()
	TriggerLatency.WithLabelValues(trigger).Observe(latencyMs)
}

// RecordSwap records a router execution outcome and its confirm latency.
func RecordSwap(venue, side, result string, confirmLatencyMs float64) {
	SwapsExecuted.WithLabelValues(venue, side, result).Inc()
	if result == "confirmed" {
		RouterConfirmLatency.WithLabelValues(venue, side).Observe(confirmLatencyMs)
	}
}

// RecordDelivery records an outbox delivery attempt outcome.
func RecordDelivery(notifType, result string) {
	NotificationsDelivered.WithLabelValues(notifType, result).Inc()
}

// RecordBudgetDenial records a reserve_trade_budget rejection.
func RecordBudgetDenial(reason string) {
	BudgetDenials.WithLabelValues(reason).Inc()
}
