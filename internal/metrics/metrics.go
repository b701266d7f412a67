// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package metrics exposes the Prometheus collectors for the scraping
// pipeline, the translator, the report cache, and the WebSocket gateway.
// Everything registers via promauto on the default registry and is served
// at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job metrics
	JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripvault_jobs_started_total",
			Help: "Total number of scraping jobs started",
		},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripvault_jobs_active",
			Help: "Number of scraping jobs currently running",
		},
	)

	JobsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripvault_jobs_rejected_total",
			Help: "Total number of job submissions rejected because the substance was already being scraped",
		},
	)

	// Source metrics
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_source_requests_total",
			Help: "Total number of HTTP requests issued to external sources",
		},
		[]string{"source", "result"}, // result: "success", "failure", "rejected"
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripvault_source_request_duration_seconds",
			Help:    "Duration of HTTP requests to external sources",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceListErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_source_list_errors_total",
			Help: "Total number of failed report-list operations per source",
		},
		[]string{"source"},
	)

	ReportsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_reports_scraped_total",
			Help: "Total number of reports fetched and persisted",
		},
		[]string{"source"},
	)

	ReportsSkippedCached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripvault_reports_skipped_cached_total",
			Help: "Total number of reports skipped because they were already cached",
		},
	)

	// Translation metrics
	ReportsTranslated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripvault_reports_translated_total",
			Help: "Total number of report bodies run through the translator",
		},
	)

	TranslationChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_translation_chunks_total",
			Help: "Total number of translation chunks by outcome",
		},
		[]string{"result"}, // "success", "fallback"
	)

	TranslationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripvault_translation_duration_seconds",
			Help:    "Duration of full-report translations",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Cache metrics
	CachedSubstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripvault_cached_substances",
			Help: "Number of substances present in the report cache",
		},
	)

	// WebSocket / event metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripvault_websocket_connections",
			Help: "Number of connected WebSocket observers",
		},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_events_delivered_total",
			Help: "Total number of events enqueued to observers",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_events_dropped_total",
			Help: "Total number of events dropped because an observer was gone or its buffer was full",
		},
		[]string{"reason"}, // "buffer_full", "unknown_observer"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tripvault_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripvault_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"source", "from", "to"},
	)

	// HTTP API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripvault_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordSourceRequest records one outbound request's outcome and latency.
func RecordSourceRequest(source, result string, duration time.Duration) {
	SourceRequests.WithLabelValues(source, result).Inc()
	if result != "rejected" {
		SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}
