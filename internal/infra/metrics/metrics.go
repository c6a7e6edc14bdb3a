// Package metrics exposes the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	uploads           *prometheus.CounterVec
	anchorSettlements *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	receiptCache      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credanchor_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credanchor_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credanchor_uploads_total",
			Help: "Issued proofs by outcome.",
		}, []string{"outcome"}),
		anchorSettlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credanchor_anchor_settlements_total",
			Help: "Settled anchors by kind and status.",
		}, []string{"kind", "status"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credanchor_verifications_total",
			Help: "Verification lookups by result.",
		}, []string{"result"}),
		receiptCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credanchor_receipt_cache_total",
			Help: "Chain receipt cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AnchorSettled(kind, status string) {
	if m == nil {
		return
	}
	m.anchorSettlements.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Verification(found bool) {
	if m == nil {
		return
	}
	result := "missing"
	if found {
		result = "found"
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ReceiptCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.receiptCache.WithLabelValues(result).Inc()
}
