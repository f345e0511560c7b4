package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "index_count",
		Help: "The number of indexes.",
	})

	indexCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_count_total",
		Help: "The total number of indexes.",
	})

	indexEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "index_entities",
		Help: "The number of entities stored in all the indexes.",
	})

	indexCapacityErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_capacity_errors_total",
		Help: "The total number of entities rejected because an index was full.",
	})

	indexQueryResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "index_query_results",
		Help:    "The number of entities returned by region queries.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

func instrumentAddIndex() {
	indexCount.Inc()
	indexCountTotal.Inc()
}

func instrumentRemoveIndex() {
	indexCount.Dec()
}

func instrumentEntities(delta int) {
	indexEntities.Add(float64(delta))
}

func instrumentCapacityError() {
	indexCapacityErrors.Inc()
}

func instrumentQueryResults(n int) {
	indexQueryResults.Observe(float64(n))
}
