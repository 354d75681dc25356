// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telemetry provides Prometheus metrics and logging for the
// memory engine. Metrics are a log-and-continue concern: no operation
// depends on them for correctness.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engram"

var (
	// MemorySaves counts persisted records by memory type.
	MemorySaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_saves_total",
			Help:      "Total number of memory records saved",
		},
		[]string{"type"},
	)

	// MemoryDeletes counts removed records.
	MemoryDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_deletes_total",
			Help:      "Total number of memory records deleted",
		},
	)

	// Queries counts retrieval calls.
	Queries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of memory queries",
		},
	)

	// Reinforcements counts reinforcement calls.
	Reinforcements = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reinforcements_total",
			Help:      "Total number of reinforcement calls",
		},
	)

	// Consolidations counts completed consolidation passes.
	Consolidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidations_total",
			Help:      "Total number of consolidation passes",
		},
	)

	// OperationFailures counts failures by kind ("storage",
	// "index_inconsistency", "export", "import").
	OperationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Total number of failed operations by kind",
		},
		[]string{"kind"},
	)

	// QueryDuration tracks end-to-end query latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Memory query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RecordCount tracks the current number of stored records.
	RecordCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "record_count",
			Help:      "Current number of stored memory records",
		},
	)
)

// RecordSave increments the save counter for one memory type.
func RecordSave(memType string) {
	MemorySaves.WithLabelValues(memType).Inc()
}

// RecordDelete increments the delete counter.
func RecordDelete() {
	MemoryDeletes.Inc()
}

// RecordQuery increments the query counter.
func RecordQuery() {
	Queries.Inc()
}

// RecordReinforcement increments the reinforcement counter.
func RecordReinforcement() {
	Reinforcements.Inc()
}

// RecordConsolidation increments the consolidation counter.
func RecordConsolidation() {
	Consolidations.Inc()
}

// RecordFailure increments the failure counter for one kind.
func RecordFailure(kind string) {
	OperationFailures.WithLabelValues(kind).Inc()
}

// ObserveQueryDuration records one query's latency.
func ObserveQueryDuration(d time.Duration) {
	QueryDuration.Observe(d.Seconds())
}

// SetRecordCount updates the stored-record gauge.
func SetRecordCount(n int) {
	RecordCount.Set(float64(n))
}
