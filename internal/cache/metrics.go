package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheClears prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openflow",
			Subsystem: "dashboard",
			Name:      "query_cache_hits_total",
			Help:      "Cache hits served without querying the event source",
		}, []string{"query"})

		cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openflow",
			Subsystem: "dashboard",
			Name:      "query_cache_misses_total",
			Help:      "Cache misses that invoked the event source",
		}, []string{"query"})

		cacheClears = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openflow",
			Subsystem: "dashboard",
			Name:      "query_cache_clears_total",
			Help:      "Operator-initiated cache invalidations",
		})

		collectors := []prometheus.Collector{cacheHits, cacheMisses, cacheClears}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == cacheHits {
							cacheHits = v
						} else if collector == cacheMisses {
							cacheMisses = v
						}
					case prometheus.Counter:
						cacheClears = v
					}
				}
			}
		}
	})
}

func recordHit(query string) {
	initMetrics()
	cacheHits.WithLabelValues(query).Inc()
}

func recordMiss(query string) {
	initMetrics()
	cacheMisses.WithLabelValues(query).Inc()
}

func recordClear() {
	initMetrics()
	cacheClears.Inc()
}
