// Package metrics exposes the Prometheus metrics of the catalog proxy.
// All metrics are defined in their respective packages (cache, repository,
// client, aggregator, server) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the scrape handler and a reference of every series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all catalog metrics are registered with.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Store Metrics (pkg/cache):
//   - catalog_cache_hits_total{backend} (Counter): Store hits by backend (redis, memory)
//   - catalog_cache_misses_total{backend} (Counter): Store misses by backend
//   - catalog_cache_written_bytes_total{backend} (Counter): Bytes written by backend
//   - catalog_cache_errors_total{backend, operation} (Counter): Store operation errors
//
// Repository Metrics (pkg/repository):
//   - catalog_repository_merges_total{kind} (Counter): Merge operations by collection kind
//   - catalog_repository_appended_total{kind} (Counter): Entities appended by kind
//   - catalog_repository_corrupted_reads_total (Counter): Stored collections that failed to decode
//
// Upstream Metrics (pkg/client):
//   - catalog_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint template and HTTP status
//   - catalog_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint template
//   - catalog_upstream_errors_total{class} (Counter): Errors by class (client, server, network)
//   - catalog_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Extension Metrics (pkg/aggregator):
//   - catalog_extensions_total{kind, outcome} (Counter): Category and product extensions (extended, failed)
//
// Page Metrics (pkg/server):
//   - catalog_page_requests_total{kind, cache} (Counter): Page requests by kind and cache result (hit, miss)
//   - catalog_prefetch_tasks_total{kind, outcome} (Counter): Background tasks by kind (products_page, products_fill, offers) and outcome (ok, failed, dropped)
//   - catalog_prefetch_in_flight (Gauge): Prefetch tasks running or waiting for a slot
//
// Example Prometheus Queries:
//
//   # Products page hit rate
//   sum(rate(catalog_page_requests_total{kind="products",cache="hit"}[5m])) /
//   sum(rate(catalog_page_requests_total{kind="products"}[5m]))
//
//   # Failed extensions
//   rate(catalog_extensions_total{outcome="failed"}[5m])
//
//   # Prefetch failure ratio
//   sum(rate(catalog_prefetch_tasks_total{outcome!="ok"}[5m])) /
//   sum(rate(catalog_prefetch_tasks_total[5m]))
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(catalog_upstream_request_duration_seconds_bucket[5m]))
