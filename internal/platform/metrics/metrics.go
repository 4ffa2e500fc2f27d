package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault.
type Metrics struct {
	ProfilesCreated       prometheus.Counter
	ProfilesDeleted       prometheus.Counter
	IsolationViolations   *prometheus.CounterVec
	BarrierBreaches       prometheus.Counter
	QuarantinedOperations prometheus.Counter
	AccessDenied          *prometheus.CounterVec
	CryptoOpDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProfilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profilevault_profiles_created_total",
			Help: "Total number of profiles created",
		}),
		ProfilesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profilevault_profiles_deleted_total",
			Help: "Total number of profiles hard-deleted",
		}),
		IsolationViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profilevault_isolation_violations_total",
			Help: "Isolation violations detected, by type",
		}, []string{"type"}),
		BarrierBreaches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profilevault_barrier_breach_attempts_total",
			Help: "Breach attempts recorded against security barriers",
		}),
		QuarantinedOperations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profilevault_quarantined_operations_total",
			Help: "Operations moved to the quarantine zone",
		}),
		AccessDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profilevault_access_denied_total",
			Help: "Access denials, by reason",
		}, []string{"reason"}),
		CryptoOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profilevault_crypto_op_duration_seconds",
			Help:    "Latency of encrypt/decrypt operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// IncProfileCreated counts a successful profile creation.
func (m *Metrics) IncProfileCreated() {
	if m == nil {
		return
	}
	m.ProfilesCreated.Inc()
}

// IncProfileDeleted counts a hard profile deletion.
func (m *Metrics) IncProfileDeleted() {
	if m == nil {
		return
	}
	m.ProfilesDeleted.Inc()
}

// ObserveCryptoOp records the latency of an encrypt or decrypt call.
func (m *Metrics) ObserveCryptoOp(op string, seconds float64) {
	if m == nil {
		return
	}
	m.CryptoOpDuration.WithLabelValues(op).Observe(seconds)
}

// IncViolation bumps the violation counter for a violation type.
func (m *Metrics) IncViolation(violationType string) {
	if m == nil {
		return
	}
	m.IsolationViolations.WithLabelValues(violationType).Inc()
}

// IncBarrierBreach counts a barrier transitioning to breached.
func (m *Metrics) IncBarrierBreach() {
	if m == nil {
		return
	}
	m.BarrierBreaches.Inc()
}

// IncQuarantine counts an operation moved to the quarantine zone.
func (m *Metrics) IncQuarantine() {
	if m == nil {
		return
	}
	m.QuarantinedOperations.Inc()
}

// IncAccessDenied bumps the denial counter for a reason.
func (m *Metrics) IncAccessDenied(reason string) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(reason).Inc()
}
