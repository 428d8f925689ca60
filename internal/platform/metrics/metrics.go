package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the engine. All methods are
// nil-safe so packages can run without metrics in tests.
type Metrics struct {
	ContextResolutions *prometheus.CounterVec
	ContextCache       *prometheus.CounterVec
	UpstreamLatency    *prometheus.HistogramVec
	ConstraintsDerived *prometheus.CounterVec
	Validations        *prometheus.CounterVec
	ProofsGenerated    *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	AnchorSubmissions  *prometheus.CounterVec
	AnchorConfirmed    prometheus.Counter
}

// New registers the collectors on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContextResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_environment_resolutions_total",
			Help: "Environmental context resolutions by outcome",
		}, []string{"outcome"}), // outcome: "resolved", "invalid_coordinate", "upstream_unavailable"

		ContextCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_environment_cache_total",
			Help: "Environmental context cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalproof_upstream_duration_seconds",
			Help:    "Duration of upstream provider calls including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "outcome"}),

		ConstraintsDerived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_constraints_derived_total",
			Help: "Constraint sets derived by metric and whether an adjustment fired",
		}, []string{"metric", "adjusted"}),

		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_validations_total",
			Help: "Reading validations by metric and risk level",
		}, []string{"metric", "risk"}),

		ProofsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_proofs_generated_total",
			Help: "Proofs generated by type and claim",
		}, []string{"type", "claim"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_verifications_total",
			Help: "Proof verifications by mode and reason",
		}, []string{"mode", "reason"}),

		AnchorSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalproof_anchor_submissions_total",
			Help: "Ledger anchor submissions by ledger and outcome",
		}, []string{"ledger", "outcome"}),

		AnchorConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "vitalproof_anchor_confirmations_total",
			Help: "Anchor receipts that reached ledger confirmation",
		}),
	}
}

func (m *Metrics) IncrementResolution(outcome string) {
	if m != nil {
		m.ContextResolutions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.ContextCache.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveUpstream(provider, outcome string, d time.Duration) {
	if m != nil {
		m.UpstreamLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementConstraints(metric string, adjusted bool) {
	if m != nil {
		label := "false"
		if adjusted {
			label = "true"
		}
		m.ConstraintsDerived.WithLabelValues(metric, label).Inc()
	}
}

func (m *Metrics) IncrementValidation(metric, risk string) {
	if m != nil {
		m.Validations.WithLabelValues(metric, risk).Inc()
	}
}

func (m *Metrics) IncrementProof(proofType, claim string) {
	if m != nil {
		m.ProofsGenerated.WithLabelValues(proofType, claim).Inc()
	}
}

func (m *Metrics) IncrementVerification(mode, reason string) {
	if m != nil {
		m.Verifications.WithLabelValues(mode, reason).Inc()
	}
}

func (m *Metrics) IncrementAnchor(ledger, outcome string) {
	if m != nil {
		m.AnchorSubmissions.WithLabelValues(ledger, outcome).Inc()
	}
}

func (m *Metrics) IncrementAnchorConfirmed() {
	if m != nil {
		m.AnchorConfirmed.Inc()
	}
}
