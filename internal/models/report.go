// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package models

// ReportMeta is the summary a source produces when listing reports for a
// substance. It is never persisted on its own; the pipeline uses it to decide
// what to fetch and as the seed for the full Report.
type ReportMeta struct {
	// ID is globally unique, namespaced by source: "<source>_<native-id>"
	// (e.g. "erowid_63399", "psychonaut_12345").
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	Author string `json:"author"`

	// Date is best-effort; list pages often omit it.
	Date string `json:"date"`
	URL  string `json:"url"`

	// SubstancesText is the free-form substance description from the listing.
	SubstancesText string `json:"substances_text"`
}

// DoseEntry is one row of a report's dosage breakdown.
type DoseEntry struct {
	Name  string `json:"name"`
	Dose  string `json:"dose"`
	Route string `json:"route"`
	Form  string `json:"form"`
}

// Report is the full record for one experience report. Identity is ID.
// A report is created by a source's FetchReport, translated once, then
// persisted immutably: a re-fetch replaces the stored record, it never
// merges fields.
type Report struct {
	ID             string      `json:"id"`
	Source         string      `json:"source"`
	Title          string      `json:"title"`
	Author         string      `json:"author"`
	Date           string      `json:"date"`
	URL            string      `json:"url"`
	Language       string      `json:"language"`
	Substances     []DoseEntry `json:"substances"`
	BodyWeight     string      `json:"body_weight"`
	Gender         string      `json:"gender"`
	Age            string      `json:"age"`
	Categories     string      `json:"categories"`
	IsCombo        bool        `json:"is_combo"`
	BodyOriginal   string      `json:"body_original"`
	BodyTranslated string      `json:"body_translated"`
}

// IndexEntry is the metadata projection of a Report: everything except the
// two body texts. This is what lives in the per-substance index and what
// report_scraped events carry to the frontend.
type IndexEntry struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	Title      string      `json:"title"`
	Author     string      `json:"author"`
	Date       string      `json:"date"`
	URL        string      `json:"url"`
	Language   string      `json:"language"`
	Substances []DoseEntry `json:"substances"`
	BodyWeight string      `json:"body_weight"`
	Gender     string      `json:"gender"`
	Age        string      `json:"age"`
	Categories string      `json:"categories"`
	IsCombo    bool        `json:"is_combo"`
}

// IndexEntry projects the report's metadata, dropping the body texts.
func (r *Report) IndexEntry() IndexEntry {
	return IndexEntry{
		ID:         r.ID,
		Source:     r.Source,
		Title:      r.Title,
		Author:     r.Author,
		Date:       r.Date,
		URL:        r.URL,
		Language:   r.Language,
		Substances: r.Substances,
		BodyWeight: r.BodyWeight,
		Gender:     r.Gender,
		Age:        r.Age,
		Categories: r.Categories,
		IsCombo:    r.IsCombo,
	}
}

// Index is the persisted per-substance aggregate: one per substance key.
// Reports are ordered by insertion; the index is rewritten on every
// successful report persist.
type Index struct {
	SubstanceName string       `json:"substance_name"`
	Reports       []IndexEntry `json:"reports"`

	// LastScraped is an RFC3339 UTC timestamp, updated on every persist.
	LastScraped string `json:"last_scraped"`
}

// SubstanceSummary is one row of the cached-substances listing.
type SubstanceSummary struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ReportCount int    `json:"report_count"`
	LastScraped string `json:"last_scraped"`
}
