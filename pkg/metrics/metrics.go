package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations by outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmpauthz_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"result"},
	)

	// GrantMutations counts grant/revoke/delegate calls by operation and result.
	GrantMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmpauthz_grant_mutations_total",
			Help: "Total number of authorization state mutations",
		},
		[]string{"operation", "result"},
	)

	// AuditEventsWritten counts persisted audit events by the schema shape that accepted them.
	AuditEventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmpauthz_audit_events_written_total",
			Help: "Audit events persisted, labelled by accepted schema shape",
		},
		[]string{"shape"},
	)

	// AuditEventsDropped counts audit events that no schema shape accepted.
	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmpauthz_audit_events_dropped_total",
			Help: "Audit events dropped after shape negotiation failed",
		},
		[]string{"reason"},
	)

	// ExpiredGrantsPurged counts rows removed by the maintenance purge.
	ExpiredGrantsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmpauthz_expired_grants_purged_total",
			Help: "Expired grant rows removed by maintenance",
		},
		[]string{"source"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmpauthz_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
