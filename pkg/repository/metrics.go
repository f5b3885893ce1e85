package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repositoryMergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_repository_merges_total",
		Help: "Total merge operations by collection kind",
	}, []string{"kind"})

	repositoryAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_repository_appended_total",
		Help: "Total entities appended to collections by kind",
	}, []string{"kind"})

	repositoryCorruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_repository_corrupted_reads_total",
		Help: "Total reads that failed to decode a stored collection",
	})
)
