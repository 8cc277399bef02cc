package gatecred

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gatecred"

// Metrics are the engine's Prometheus collectors. When metrics are disabled
// the engine still carries a set registered on a private throwaway registry,
// so call sites never branch.
type Metrics struct {
	trafficAllowed   prometheus.Counter
	trafficThrottled prometheus.Counter
	loginThrottled   prometheus.Counter
	loginFailures    prometheus.Counter
	blacklistHits    prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	reconcileRuns    prometheus.Counter
	reconcileEvicted prometheus.Counter
	storeErrors      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		trafficAllowed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "traffic_allowed_total",
			Help:      "Requests admitted by the traffic rate limiter.",
		}),
		trafficThrottled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "traffic_throttled_total",
			Help:      "Requests rejected by the traffic rate limiter.",
		}),
		loginThrottled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_throttled_total",
			Help:      "Login attempts rejected by the failed-attempt limiter.",
		}),
		loginFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_failures_recorded_total",
			Help:      "Failed login attempts recorded against a window.",
		}),
		blacklistHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blacklist_hits_total",
			Help:      "Presented tokens found on the blacklist.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_cache_hits_total",
			Help:      "Token cache lookups that found an active pair.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_cache_misses_total",
			Help:      "Token cache lookups that found nothing.",
		}),
		reconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_runs_total",
			Help:      "Completed expired-entry reconciliation sweeps.",
		}),
		reconcileEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_evicted_total",
			Help:      "Entries evicted by reconciliation sweeps.",
		}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "store_errors_total",
			Help:      "Store failures absorbed by the failure policy, by call site.",
		}, []string{"op"}),
	}
}

func (m *Metrics) storeError(op storeOp) {
	m.storeErrors.WithLabelValues(string(op)).Inc()
}

func (m *Metrics) addEvicted(n int) {
	if n <= 0 {
		return
	}
	m.reconcileEvicted.Add(float64(n))
}
