package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics records payment intake outcomes.
type IntakeMetrics struct {
	created  prometheus.Counter
	replayed prometheus.Counter
	rejected prometheus.Counter
}

// NewIntakeMetrics registers the intake metrics on the provided registerer.
func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	if reg == nil {
		return &IntakeMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_created",
		Help: "Payments created on first submission.",
	})
	replayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_replayed",
		Help: "Submissions answered from an existing idempotency key.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_rejected",
		Help: "Submissions rejected by validation.",
	})
	reg.MustRegister(created, replayed, rejected)
	return &IntakeMetrics{created: created, replayed: replayed, rejected: rejected}
}

// IncCreated counts a first-time payment creation.
func (m *IntakeMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncReplayed counts an idempotent replay.
func (m *IntakeMetrics) IncReplayed() {
	if m == nil || m.replayed == nil {
		return
	}
	m.replayed.Inc()
}

// IncRejected counts a validation rejection.
func (m *IntakeMetrics) IncRejected() {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.Inc()
}
