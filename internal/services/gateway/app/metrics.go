package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	DashboardHits    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awd_gateway_upstream_requests_total",
			Help: "Upstream calls by service and outcome.",
		}, []string{"upstream", "outcome"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "awd_gateway_upstream_latency_seconds",
			Help:    "Upstream call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream"}),
		DashboardHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "awd_gateway_dashboard_requests_total",
			Help: "Dashboard page loads.",
		}),
	}
}
