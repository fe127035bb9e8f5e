package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MigrationsAppliedTotal tracks migrations applied successfully.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_migrations_applied_total",
		Help: "Total migrations applied successfully",
	},
	[]string{"application"},
)

// MigrationsRolledBackTotal tracks migrations rolled back successfully.
var MigrationsRolledBackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_migrations_rolled_back_total",
		Help: "Total migrations rolled back successfully",
	},
	[]string{"application"},
)

// MigrationFailuresTotal tracks failures that propagated out of a transaction.
var MigrationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_migration_failures_total",
		Help: "Total unswallowed transaction failures",
	},
	[]string{"application", "direction"},
)

// IgnoredErrorsTotal tracks transaction failures swallowed by force or error policy.
var IgnoredErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_ignored_errors_total",
		Help: "Total transaction failures swallowed by force or error policy",
	},
	[]string{"application", "direction"},
)

// CompensationsTotal tracks compensating rollbacks run after a partial apply.
var CompensationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_compensations_total",
		Help: "Total compensating rollbacks after a failed apply",
	},
	[]string{"application"},
)

// StatusReportsTotal tracks status reports recorded by the status consumer.
var StatusReportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_status_reports_total",
		Help: "Total status reports recorded",
	},
	[]string{"application", "status"},
)

// DispatchesTotal tracks dispatch messages handled by the worker.
var DispatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "appmigrate_dispatches_total",
		Help: "Total dispatch messages handled",
	},
	[]string{"application", "action"},
)

// ActionDuration tracks how long a single migration action takes.
var ActionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "appmigrate_action_duration_seconds",
		Help:    "Time spent running one migration action",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"application", "action"},
)
