// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

/*
Package models defines data structures for the Tripvault application.

It is the single source of truth for the report domain (ReportMeta, Report,
IndexEntry, Index) and for the WebSocket progress event payloads the
aggregation pipeline emits. Models carry no behavior beyond projections;
persistence lives in internal/store and orchestration in internal/aggregate.
*/
package models
