package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconMetrics records reconciliation worker activity.
type ReconMetrics struct {
	duration   *prometheus.HistogramVec
	completed  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	deadLetter prometheus.Counter
	leaseLost  prometheus.Counter
}

// NewReconMetrics registers the reconciliation metrics on the provided registerer.
func NewReconMetrics(reg prometheus.Registerer) *ReconMetrics {
	if reg == nil {
		return &ReconMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recon_job_duration_seconds",
		Help:    "Duration of reconciliation attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_jobs_completed",
		Help: "Reconciliation jobs completed, by verdict.",
	}, []string{"verdict"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_attempts_failed",
		Help: "Failed reconciliation attempts, by reason.",
	}, []string{"reason"})
	deadLetter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recon_jobs_dead_lettered",
		Help: "Jobs that exhausted their retry budget.",
	})
	leaseLost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recon_leases_lost",
		Help: "Leases lost mid-attempt (work abandoned).",
	})
	reg.MustRegister(duration, completed, failed, deadLetter, leaseLost)
	return &ReconMetrics{
		duration:   duration,
		completed:  completed,
		failed:     failed,
		deadLetter: deadLetter,
		leaseLost:  leaseLost,
	}
}

// ObserveDuration records how long an attempt took for the given outcome.
func (m *ReconMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCompleted increments the completion counter for the given verdict.
func (m *ReconMetrics) IncCompleted(verdict string) {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.WithLabelValues(normalizeLabel(verdict)).Inc()
}

// IncFailed increments the failed-attempt counter for the given reason.
func (m *ReconMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncDeadLettered counts a job moving to the terminal failed state.
func (m *ReconMetrics) IncDeadLettered() {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.Inc()
}

// IncLeaseLost counts an attempt abandoned because the lease lapsed.
func (m *ReconMetrics) IncLeaseLost() {
	if m == nil || m.leaseLost == nil {
		return
	}
	m.leaseLost.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
