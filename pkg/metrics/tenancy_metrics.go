package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter metrics
var (
	// ScopedOperationCounter counts storage calls rewritten for a tenant
	ScopedOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_scoped_operations_total",
			Help: "Total number of storage operations scoped to a tenant",
		},
		[]string{"model", "action"},
	)

	// BypassCounter counts storage calls that skipped scoping under a platform bypass
	BypassCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_bypassed_operations_total",
			Help: "Total number of tenant-scoped storage operations run under a platform bypass",
		},
		[]string{"model", "action"},
	)

	// IsolationViolationCounter counts scoped calls attempted without a tenant.
	// Any non-zero value is a defect and should page.
	IsolationViolationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_isolation_violations_total",
			Help: "Total number of tenant-scoped operations attempted without a bound tenant",
		},
		[]string{"model", "action"},
	)

	// ProvisioningCounter counts provisioning attempts by outcome
	ProvisioningCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_total",
			Help: "Total number of tenant provisioning attempts by outcome",
		},
		[]string{"outcome"}, // outcome: success, validation, conflict, upstream, internal
	)

	// CompensationCounter counts saga compensations by step and result
	CompensationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_compensations_total",
			Help: "Total number of provisioning compensations run",
		},
		[]string{"step", "result"},
	)

	// ResolutionCacheCounter counts tenant host resolution cache lookups
	ResolutionCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolution_cache_total",
			Help: "Tenant host resolution cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)
)

// Histogram metrics
var (
	// DBOperationDuration measures storage calls
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ProvisioningDuration measures a whole provisioning run
	ProvisioningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provisioning_duration_seconds",
			Help:    "Duration of tenant provisioning in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ScopedOperationCounter)
	prometheus.MustRegister(BypassCounter)
	prometheus.MustRegister(IsolationViolationCounter)
	prometheus.MustRegister(ProvisioningCounter)
	prometheus.MustRegister(CompensationCounter)
	prometheus.MustRegister(ResolutionCacheCounter)

	prometheus.MustRegister(DBOperationDuration)
	prometheus.MustRegister(ProvisioningDuration)
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(startTime).Seconds())
	}
}

// RecordScopedOperation records a storage call rewritten for a tenant
func RecordScopedOperation(model, action string) {
	ScopedOperationCounter.With(prometheus.Labels{"model": model, "action": action}).Inc()
}

// RecordBypass records a storage call run under a platform bypass
func RecordBypass(model, action string) {
	BypassCounter.With(prometheus.Labels{"model": model, "action": action}).Inc()
}

// RecordIsolationViolation records a scoped call attempted without a tenant
func RecordIsolationViolation(model, action string) {
	IsolationViolationCounter.With(prometheus.Labels{"model": model, "action": action}).Inc()
}

// RecordProvisioning records the outcome of one provisioning run
func RecordProvisioning(outcome string, started time.Time) {
	ProvisioningCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
	ProvisioningDuration.Observe(time.Since(started).Seconds())
}

// RecordCompensation records one compensation run
func RecordCompensation(step string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	CompensationCounter.With(prometheus.Labels{"step": step, "result": result}).Inc()
}

// RecordResolutionCache records a host resolution cache lookup
func RecordResolutionCache(result string) {
	ResolutionCacheCounter.With(prometheus.Labels{"result": result}).Inc()
}
