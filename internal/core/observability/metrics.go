package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of route computations against the upstream router.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "result"},
	)

	cacheDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_decisions_total",
			Help: "Cache mode decisions by mode and reason.",
		},
		[]string{"mode", "reason"},
	)

	routeCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_cache_results_total",
			Help: "Quote outcomes against the route window (hit, miss, bypass).",
		},
		[]string{"outcome", "mode"},
	)

	routeWindowOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_window_op_total",
			Help: "Route window store operations by result.",
		},
		[]string{"op", "result"},
	)

	routeWindowOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "route_window_op_duration_seconds",
			Help:    "Latency of route window store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op"},
	)

	shadowTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadow_tasks_total",
			Help: "Background record and compare tasks by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	shadowCompareDelta = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shadow_compare_delta_bps",
			Help:    "Absolute quote difference between served and fresh routes in basis points.",
			Buckets: []float64{0, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis commands issued by the route store.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	compareEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compare_events_total",
			Help: "Comparison events handed to the publisher by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_invalidation_events_total",
			Help: "Route invalidation events by result (applied, stale, uncached, invalid, error).",
		},
		[]string{"result"},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Invalidation consumer errors by kind.",
		},
		[]string{"kind"},
	)

	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "route_invalidation_consumer_lag",
			Help: "Messages behind the partition high water mark after the last commit.",
		},
		[]string{"partition"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		cacheDecisions,
		routeCacheResults,
		routeWindowOps,
		routeWindowOpDuration,
		shadowTasks,
		shadowCompareDelta,
		redisOpDuration,
		compareEvents,
		invalidationEvents,
		kafkaConsumerErrors,
		kafkaConsumerLag,
	}
}

// Init registers the service metrics on reg. Metrics are still recorded when
// disabled, they are just not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
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

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, result(err)).Observe(durationSeconds)
}

func IncDecision(mode, reason string) {
	if mode == "" {
		mode = "none"
	}
	cacheDecisions.WithLabelValues(mode, reason).Inc()
}

func IncRouteCacheResult(outcome, mode string) {
	if mode == "" {
		mode = "none"
	}
	routeCacheResults.WithLabelValues(outcome, mode).Inc()
}

func ObserveWindowOp(op string, err error, durationSeconds float64) {
	routeWindowOps.WithLabelValues(op, result(err)).Inc()
	routeWindowOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	redisOpDuration.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

func IncShadowTask(kind, outcome string) {
	shadowTasks.WithLabelValues(kind, outcome).Inc()
}

func ObserveCompareDelta(bps float64) {
	if bps < 0 {
		bps = -bps
	}
	shadowCompareDelta.Observe(bps)
}

func IncCompareEvent(outcome string) {
	compareEvents.WithLabelValues(outcome).Inc()
}

func IncInvalidation(result string) {
	invalidationEvents.WithLabelValues(result).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func SetConsumerLag(partition int32, lag int64) {
	if lag < 0 {
		lag = 0
	}
	kafkaConsumerLag.WithLabelValues(strconv.Itoa(int(partition))).Set(float64(lag))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// InvalidationCounter exposes one series for tests.
func InvalidationCounter(result string) prometheus.Counter {
	return invalidationEvents.WithLabelValues(result)
}
