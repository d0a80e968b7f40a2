package ctrl

import "github.com/prometheus/client_golang/prometheus"

var (
	workersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgepool_workers_connected",
			Help: "Number of registered workers",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forgepool_queue_depth",
			Help: "Number of pending compile requests",
		},
	)

	dispatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forgepool_dispatches_total",
			Help: "Compile jobs dispatched to workers",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgepool_requests_total",
			Help: "Terminal compile replies by outcome",
		},
		[]string{"outcome"},
	)

	catalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgepool_catalog_refresh_total",
			Help: "Catalog refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	workerEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forgepool_worker_evictions_total",
			Help: "Workers force-terminated for missed heartbeats",
		},
	)
)

func init() {
	prometheus.MustRegister(
		workersConnected,
		queueDepth,
		dispatchesTotal,
		requestsTotal,
		catalogRefreshTotal,
		workerEvictionsTotal,
	)
}
