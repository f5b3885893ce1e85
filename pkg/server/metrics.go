package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for page serving and prefetch.
var (
	pageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_page_requests_total",
		Help: "Total page requests by kind and cache result (hit, miss)",
	}, []string{"kind", "cache"})

	prefetchTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_prefetch_tasks_total",
		Help: "Total prefetch tasks by kind and outcome",
	}, []string{"kind", "outcome"})

	prefetchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_prefetch_in_flight",
		Help: "Number of prefetch tasks currently running or waiting for a slot",
	})
)
