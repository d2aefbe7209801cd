package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	pickResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pick_results_total",
			Help: "Pick requests by outcome and the tier that produced the hit.",
		},
		[]string{"outcome", "tier"},
	)

	providerQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_query_duration_seconds",
			Help:    "Latency of layer provider open/query/close cycles.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"layer", "result"},
	)

	selectionOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selection_op_duration_seconds",
			Help:    "Latency of selection store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	pickEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pick_events_total",
			Help: "Pick events by publish outcome.",
		},
		[]string{"outcome"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, pickResults,
		providerQueryDuration, selectionOpDuration, pickEvents,
	}
}

// Init additionally registers the service metrics on reg, e.g. the registry
// behind a dedicated metrics listener. The default registry always has them.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObservePick records a pick outcome: "hit", "miss" or "error".
func ObservePick(outcome, tier string) {
	if tier == "" {
		tier = "none"
	}
	pickResults.WithLabelValues(outcome, tier).Inc()
}

func ObserveProviderQuery(layer string, err error, durationSeconds float64) {
	providerQueryDuration.WithLabelValues(layer, result(err)).Observe(durationSeconds)
}

func ObserveSelectionOp(op string, err error, durationSeconds float64) {
	selectionOpDuration.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

// IncPickEvent counts a pick event as "queued", "dropped" or "suppressed".
func IncPickEvent(outcome string) {
	pickEvents.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
