// Package metrics defines the Prometheus instruments for permit lifecycle
// and closeout activity. Instruments register against the registerer passed
// to New, so tests can use an isolated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the fireline Prometheus instruments. A nil *Metrics is
// valid and turns every recording call into a no-op, which keeps wiring
// optional for tests and the CLI.
type Metrics struct {
	permitsCreated    prometheus.Counter
	statusTransitions *prometheus.CounterVec
	paymentsProcessed prometheus.Counter
	redlinesRecorded  prometheus.Counter
	aiReviews         prometheus.Counter
	closeoutsClosed   prometheus.Counter
	closeoutsRejected prometheus.Counter
	writeConflicts    prometheus.Counter
}

// New creates the fireline instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		permitsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_permits_created_total",
			Help: "Number of permits created.",
		}),
		statusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fireline_status_transitions_total",
			Help: "Number of permit status transitions by target status.",
		}, []string{"to_status"}),
		paymentsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_payments_processed_total",
			Help: "Number of permit fee payments processed.",
		}),
		redlinesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_redlines_recorded_total",
			Help: "Number of accepted NFPA data redlines.",
		}),
		aiReviews: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_ai_reviews_total",
			Help: "Number of recorded automated reviews.",
		}),
		closeoutsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_closeouts_closed_total",
			Help: "Number of closeouts reaching CLOSED.",
		}),
		closeoutsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_closeouts_rejected_total",
			Help: "Number of closeouts reaching REJECTED.",
		}),
		writeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fireline_write_conflicts_total",
			Help: "Number of optimistic writes lost to a concurrent update.",
		}),
	}
}

// PermitCreated records a successful permit creation.
func (m *Metrics) PermitCreated() {
	if m == nil {
		return
	}
	m.permitsCreated.Inc()
}

// StatusTransition records a committed status transition.
func (m *Metrics) StatusTransition(toStatus string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(toStatus).Inc()
}

// PaymentProcessed records a committed fee payment.
func (m *Metrics) PaymentProcessed() {
	if m == nil {
		return
	}
	m.paymentsProcessed.Inc()
}

// RedlineRecorded records an accepted NFPA data redline.
func (m *Metrics) RedlineRecorded() {
	if m == nil {
		return
	}
	m.redlinesRecorded.Inc()
}

// AIReviewRecorded records a committed automated review.
func (m *Metrics) AIReviewRecorded() {
	if m == nil {
		return
	}
	m.aiReviews.Inc()
}

// CloseoutClosed records a closeout reaching CLOSED.
func (m *Metrics) CloseoutClosed() {
	if m == nil {
		return
	}
	m.closeoutsClosed.Inc()
}

// CloseoutRejected records a closeout reaching REJECTED.
func (m *Metrics) CloseoutRejected() {
	if m == nil {
		return
	}
	m.closeoutsRejected.Inc()
}

// WriteConflict records an optimistic write that lost its race.
func (m *Metrics) WriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}
