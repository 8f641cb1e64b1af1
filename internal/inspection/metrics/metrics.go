package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the inspection module.
// Tracks lifecycle counters and the duration of the signing and document paths.
type Metrics struct {
	InspectionsCreated prometheus.Counter
	InvitationsSent    prometheus.Counter
	SignaturesCaptured *prometheus.CounterVec
	InspectionsSigned  prometheus.Counter
	SideEffectFailures *prometheus.CounterVec
	SubmitDuration     prometheus.Histogram
	AssembleDuration   prometheus.Histogram
	TokenCacheLookups  *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the inspection metrics on reg. Tests pass a
// fresh prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InspectionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "habitat_inspections_created_total",
			Help: "Total number of inspections created",
		}),
		InvitationsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "habitat_inspection_invitations_sent_total",
			Help: "Total number of signing invitations sent",
		}),
		SignaturesCaptured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "habitat_inspection_signatures_captured_total",
			Help: "Signatures captured, by signer role",
		}, []string{"role"}),
		InspectionsSigned: f.NewCounter(prometheus.CounterOpts{
			Name: "habitat_inspections_signed_total",
			Help: "Inspections that reached the signed status",
		}),
		SideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "habitat_inspection_side_effect_failures_total",
			Help: "Event or audit emissions that failed after a committed operation",
		}, []string{"kind"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "habitat_inspection_submit_signature_duration_seconds",
			Help:    "Duration of SubmitSignature operations (upload included)",
			Buckets: durationBuckets,
		}),
		AssembleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "habitat_inspection_assemble_document_duration_seconds",
			Help:    "Duration of AssembleDocument operations",
			Buckets: durationBuckets,
		}),
		TokenCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "habitat_inspection_token_cache_lookups_total",
			Help: "Invitation token cache lookups, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.InspectionsCreated.Inc()
}

func (m *Metrics) IncrementInvitationSent() {
	if m == nil {
		return
	}
	m.InvitationsSent.Inc()
}

func (m *Metrics) IncrementSignatureCaptured(role string) {
	if m == nil {
		return
	}
	m.SignaturesCaptured.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementSigned() {
	if m == nil {
		return
	}
	m.InspectionsSigned.Inc()
}

// IncrementSideEffectFailure counts a dropped event ("event") or audit
// entry ("audit").
func (m *Metrics) IncrementSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(kind).Inc()
}

// IncrementTokenLookup records a cache "hit", "miss" or "error".
func (m *Metrics) IncrementTokenLookup(result string) {
	if m == nil {
		return
	}
	m.TokenCacheLookups.WithLabelValues(result).Inc()
}

// ObserveSubmitSignature records the duration of a SubmitSignature operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmitSignature(start time.Time) {
	if m == nil {
		return
	}
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// ObserveAssembleDocument records the duration of an AssembleDocument operation.
func (m *Metrics) ObserveAssembleDocument(start time.Time) {
	if m == nil {
		return
	}
	m.AssembleDuration.Observe(time.Since(start).Seconds())
}
