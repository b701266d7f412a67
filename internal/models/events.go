// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package models

// WebSocket event names emitted during a scraping job. These are the wire
// vocabulary the frontend listens for; delivery is best-effort, at-most-once.
const (
	EventScrapingStatus   = "scraping_status"
	EventScrapingStart    = "scraping_start"
	EventReportScraping   = "report_scraping"
	EventReportTranslating = "report_translating"
	EventReportScraped    = "report_scraped"
	EventScrapingComplete = "scraping_complete"
	EventScrapingError    = "scraping_error"
)

// Phases carried by StatusEvent.
const (
	PhaseListing = "listing"
	PhaseCached  = "cached"
	PhaseError   = "error"
	PhaseRunning = "running"
)

// StatusEvent reports a coarse phase change (listing started, everything
// already cached, a source failed, job already running).
type StatusEvent struct {
	Phase   string `json:"phase"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// StartEvent announces the per-source work plan after cache deduplication.
type StartEvent struct {
	Source          string `json:"source"`
	Total           int    `json:"total"`
	TotalWithCached int    `json:"total_with_cached"`
	AlreadyCached   int    `json:"already_cached"`
}

// ProgressEvent reports per-report progress within one source
// (report_scraping and report_translating share this shape).
type ProgressEvent struct {
	Source  string `json:"source,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Title   string `json:"title"`
}

// ReportScrapedEvent announces one fully persisted report. The payload
// carries the index projection only; body texts never cross the socket here.
type ReportScrapedEvent struct {
	Source  string     `json:"source"`
	Current int        `json:"current"`
	Total   int        `json:"total"`
	Report  IndexEntry `json:"report"`
}

// CompleteEvent is the single terminal event of every job.
type CompleteEvent struct {
	TotalReports int    `json:"total_reports"`
	Message      string `json:"message"`
}

// ErrorEvent reports a job-level error to the requesting observer
// (empty substance name, nothing found anywhere).
type ErrorEvent struct {
	Message string `json:"message"`
}
