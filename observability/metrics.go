package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics captures metrics for intent processing at the service
// boundary.
type GatewayMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	policyMetricsOnce sync.Once
	policyRegistry    *PolicyMetrics

	executionMetricsOnce sync.Once
	executionRegistry    *ExecutionMetrics

	intelMetricsOnce sync.Once
	intelRegistry    *IntelMetrics

	auditMetricsOnce sync.Once
	auditRegistry    *AuditMetrics
)

// Gateway returns the lazily-initialised metrics registry used to record
// intent processing activity at the service boundary.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total processed intents segmented by intent type and response status.",
			}, []string{"intent", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "payguard",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for intent processing.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"intent"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of intents rejected before policy evaluation.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a processed intent.
func (m *GatewayMetrics) Observe(intent, status string, duration time.Duration) {
	if m == nil {
		return
	}
	intent = labelOrDefault(intent, "UNKNOWN")
	status = labelOrDefault(status, "error")
	m.requests.WithLabelValues(intent, status).Inc()
	m.latency.WithLabelValues(intent).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied reason.
// Reasons should be stable strings such as "rate_limit" or "unknown_user" so
// dashboards and alerts remain consistent.
func (m *GatewayMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOrDefault(reason, "unspecified")).Inc()
}

// PolicyMetrics captures metrics for policy engine evaluations.
type PolicyMetrics struct {
	decisions  *prometheus.CounterVec
	violations *prometheus.CounterVec
	latency    prometheus.Histogram
}

// Policy returns the singleton metrics registry for the policy engine.
func Policy() *PolicyMetrics {
	policyMetricsOnce.Do(func() {
		policyRegistry = &PolicyMetrics{
			decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "policy",
				Name:      "decisions_total",
				Help:      "Count of policy decisions segmented by outcome.",
			}, []string{"decision"}),
			violations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "policy",
				Name:      "rule_violations_total",
				Help:      "Count of rule violations segmented by rule name and severity.",
			}, []string{"rule", "severity"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "payguard",
				Subsystem: "policy",
				Name:      "evaluation_duration_seconds",
				Help:      "Latency distribution for full policy evaluations.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			policyRegistry.decisions,
			policyRegistry.violations,
			policyRegistry.latency,
		)
	})
	return policyRegistry
}

// ObserveDecision records a completed policy evaluation.
func (m *PolicyMetrics) ObserveDecision(decision string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(labelOrDefault(decision, "UNKNOWN")).Inc()
	m.latency.Observe(duration.Seconds())
}

// RecordViolation increments the violation counter for a rule.
func (m *PolicyMetrics) RecordViolation(rule, severity string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(labelOrDefault(rule, "unknown"), labelOrDefault(severity, "unknown")).Inc()
}

// ExecutionMetrics wraps collectors tracking execution engine health.
type ExecutionMetrics struct {
	executions *prometheus.CounterVec
	latency    prometheus.Histogram
	errors     *prometheus.CounterVec
}

// Execution exposes the metrics registry for the execution engine.
func Execution() *ExecutionMetrics {
	executionMetricsOnce.Do(func() {
		executionRegistry = &ExecutionMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "execution",
				Name:      "executions_total",
				Help:      "Count of execution attempts segmented by final transaction state.",
			}, []string{"state"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "payguard",
				Subsystem: "execution",
				Name:      "duration_seconds",
				Help:      "Latency distribution for settlement execution.",
				Buckets:   prometheus.DefBuckets,
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "execution",
				Name:      "errors_total",
				Help:      "Count of execution failures segmented by error code.",
			}, []string{"code"}),
		}
		prometheus.MustRegister(
			executionRegistry.executions,
			executionRegistry.latency,
			executionRegistry.errors,
		)
	})
	return executionRegistry
}

// Observe records the final state and latency of an execution attempt.
func (m *ExecutionMetrics) Observe(state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(labelOrDefault(state, "UNKNOWN")).Inc()
	m.latency.Observe(duration.Seconds())
}

// RecordError increments the error counter for the supplied code.
func (m *ExecutionMetrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(labelOrDefault(code, "UNKNOWN")).Inc()
}

// IntelMetrics bundles collectors for merchant risk intelligence updates.
type IntelMetrics struct {
	transitions  *prometheus.CounterVec
	fraudReports prometheus.Counter
	flags        prometheus.Counter
}

// Intel returns the metrics registry for the fraud intelligence store.
func Intel() *IntelMetrics {
	intelMetricsOnce.Do(func() {
		intelRegistry = &IntelMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "intel",
				Name:      "risk_transitions_total",
				Help:      "Count of merchant risk state transitions segmented by edge.",
			}, []string{"from", "to"}),
			fraudReports: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "intel",
				Name:      "fraud_reports_total",
				Help:      "Count of fraud reports recorded against merchants.",
			}),
			flags: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "intel",
				Name:      "impersonation_flags_total",
				Help:      "Count of merchants flagged for brand impersonation.",
			}),
		}
		prometheus.MustRegister(
			intelRegistry.transitions,
			intelRegistry.fraudReports,
			intelRegistry.flags,
		)
	})
	return intelRegistry
}

// RecordTransition increments the transition counter for the supplied edge.
func (m *IntelMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(labelOrDefault(from, "UNKNOWN"), labelOrDefault(to, "UNKNOWN")).Inc()
}

// RecordFraudReport increments the fraud report counter.
func (m *IntelMetrics) RecordFraudReport() {
	if m == nil {
		return
	}
	m.fraudReports.Inc()
}

// RecordImpersonationFlag increments the impersonation flag counter.
func (m *IntelMetrics) RecordImpersonationFlag() {
	if m == nil {
		return
	}
	m.flags.Inc()
}

// AuditMetrics tracks ledger writes and archive exports.
type AuditMetrics struct {
	events      *prometheus.CounterVec
	archiveRuns *prometheus.CounterVec
	archiveRows prometheus.Counter
}

// Audit returns the metrics registry for the audit ledger.
func Audit() *AuditMetrics {
	auditMetricsOnce.Do(func() {
		auditRegistry = &AuditMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Count of audit events appended to the ledger segmented by type.",
			}, []string{"type"}),
			archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "audit",
				Name:      "archive_runs_total",
				Help:      "Count of archive export runs segmented by outcome.",
			}, []string{"outcome"}),
			archiveRows: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payguard",
				Subsystem: "audit",
				Name:      "archive_rows_total",
				Help:      "Count of audit rows exported to archive files.",
			}),
		}
		prometheus.MustRegister(
			auditRegistry.events,
			auditRegistry.archiveRuns,
			auditRegistry.archiveRows,
		)
	})
	return auditRegistry
}

// RecordEvent increments the event counter for the supplied type.
func (m *AuditMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(labelOrDefault(eventType, "UNKNOWN")).Inc()
}

// RecordArchive records the outcome of an archive export run.
func (m *AuditMetrics) RecordArchive(rows int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.archiveRuns.WithLabelValues(outcome).Inc()
	if rows > 0 {
		m.archiveRows.Add(float64(rows))
	}
}

func labelOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
