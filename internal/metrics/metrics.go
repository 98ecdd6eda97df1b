// Package metrics exposes the worker's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job engine metrics
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfbot_jobs_running",
			Help: "Number of jobs currently executing",
		},
	)

	JobsSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfbot_jobs_succeeded_total",
			Help: "Jobs that reached the succeeded state",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfbot_jobs_failed_total",
			Help: "Jobs that exhausted their attempt budget",
		},
	)

	JobsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfbot_jobs_retried_total",
			Help: "Job attempts that were requeued",
		},
	)

	JobsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfbot_jobs_enqueued_total",
			Help: "Jobs pushed onto the queue by this process",
		},
	)

	// Catalog metrics
	CatalogSyncDeleted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfbot_catalog_sync_deleted",
			Help: "Items soft-deleted by the last catalog sync",
		},
	)

	CatalogSyncObserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfbot_catalog_sync_observed",
			Help: "Items observed by the last catalog sync",
		},
	)

	// Delivery metrics
	DeliveryBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfbot_delivery_bytes_total",
			Help: "Bytes delivered to chats by mode",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsSucceeded)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsRetried)
	prometheus.MustRegister(JobsEnqueued)
	prometheus.MustRegister(CatalogSyncDeleted)
	prometheus.MustRegister(CatalogSyncObserved)
	prometheus.MustRegister(DeliveryBytes)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
