// Package metrics holds the Prometheus collectors for lookups, lead intake,
// ingestion and the HTTP surface.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "soilrisk"

// Outcome label values.
const (
	OutcomeMatched  = "matched"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"

	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics groups every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	GeocodeRequests *prometheus.CounterVec // labels: outcome={matched,not_found,error}
	SoilLookups     *prometheus.CounterVec // labels: outcome={matched,not_found,error}
	LeadSubmissions *prometheus.CounterVec // labels: outcome={accepted,rejected,failed}
	IngestResults   *prometheus.CounterVec // labels: status
	RiskAssessments *prometheus.CounterVec // labels: risk

	HTTPRequestDuration *prometheus.HistogramVec // labels: route, method, status
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding requests by outcome.",
		}, []string{"outcome"}),
		SoilLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soil_lookups_total",
			Help:      "Soil Data Access lookups by outcome.",
		}, []string{"outcome"}),
		LeadSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_submissions_total",
			Help:      "Lead intake submissions by outcome.",
		}, []string{"outcome"}),
		IngestResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_results_total",
			Help:      "Location ingestion results by status.",
		}, []string{"status"}),
		RiskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Completed risk assessments by risk tier.",
		}, []string{"risk"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.GeocodeRequests,
		m.SoilLookups,
		m.LeadSubmissions,
		m.IngestResults,
		m.RiskAssessments,
		m.HTTPRequestDuration,
	)
	return m
}

// ObserveGeocode counts a geocode request.
func (m *Metrics) ObserveGeocode(outcome string) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(outcome).Inc()
}

// ObserveSoil counts a soil lookup.
func (m *Metrics) ObserveSoil(outcome string) {
	if m == nil {
		return
	}
	m.SoilLookups.WithLabelValues(outcome).Inc()
}

// ObserveLead counts a lead submission.
func (m *Metrics) ObserveLead(outcome string) {
	if m == nil {
		return
	}
	m.LeadSubmissions.WithLabelValues(outcome).Inc()
}

// ObserveIngest counts an ingestion result. Failure statuses carrying a
// database message are folded to their prefix to bound label cardinality.
func (m *Metrics) ObserveIngest(status string) {
	if m == nil {
		return
	}
	m.IngestResults.WithLabelValues(StatusLabel(status)).Inc()
}

// ObserveRisk counts a completed assessment by tier.
func (m *Metrics) ObserveRisk(risk string) {
	if m == nil {
		return
	}
	m.RiskAssessments.WithLabelValues(risk).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}

// StatusLabel trims the " - <detail>" suffix from an ingest status.
func StatusLabel(status string) string {
	prefix, _, _ := strings.Cut(status, " - ")
	return prefix
}
