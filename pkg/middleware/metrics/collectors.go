package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "steeze_assets"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_seconds",
			Help:      "admin http response time.",
			Buckets:   []float64{0.005, 0.05, 0.5, 1, 5, 30, 60},
		},
	)

	totalHttpRequestsFromRole = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_from_role_total", Help: "admin http requests by caller role"},
		[]string{"role"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "admin http requests by code, uri and method"},
		[]string{"code", "uri", "method"},
	)

	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "resolve_total", Help: "asset lookups by result"},
		[]string{"instance", "result"},
	)

	loadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "load_total", Help: "manifest load attempts by outcome"},
		[]string{"instance", "outcome"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "time from attempt start to Ready or Failed, including waits.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"instance"},
	)

	manifestEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "manifest_entries", Help: "entries in the active manifest"},
		[]string{"instance"},
	)

	resolverState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "resolver_state", Help: "1 for the resolver's current state, 0 otherwise"},
		[]string{"instance", "state"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsFromRole,
		totalHttpRequests,
		resolveTotal,
		loadTotal,
		loadDuration,
		manifestEntries,
		resolverState,
	)
}
