package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_cache_hits_total",
		Help: "Total cache hits by endpoint class",
	}, []string{"class"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_cache_misses_total",
		Help: "Total cache misses by endpoint class",
	}, []string{"class"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_cache_errors_total",
		Help: "Total cache backend errors by operation",
	}, []string{"op"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidgate_cache_invalidations_total",
		Help: "Total entries removed by explicit invalidation, by scope",
	}, []string{"scope"})
)
