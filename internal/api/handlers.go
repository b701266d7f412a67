// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/tripvault/internal/aggregate"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/metrics"
	"github.com/tomtom215/tripvault/internal/models"
	"github.com/tomtom215/tripvault/internal/store"
	ws "github.com/tomtom215/tripvault/internal/websocket"
)

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	store       *store.Store
	hub         *ws.Hub
	service     *aggregate.Service
	corsOrigins []string
	startTime   time.Time
}

// NewHandler creates the handler set for the REST and WebSocket endpoints.
func NewHandler(st *store.Store, hub *ws.Hub, service *aggregate.Service, corsOrigins []string) *Handler {
	return &Handler{
		store:       st,
		hub:         hub,
		service:     service,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
	}
}

// Health reports process liveness plus a few cheap runtime facts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"status":            "ok",
		"uptime_seconds":    int64(time.Since(h.startTime).Seconds()),
		"websocket_clients": h.hub.ClientCount(),
	})
}

// Substances lists every substance with at least one cached report.
func (h *Handler) Substances(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListSubstances()
	if err != nil {
		NewResponseWriter(w, r).StoreError(err)
		return
	}

	metrics.CachedSubstances.Set(float64(len(summaries)))

	WriteSuccess(w, r, map[string]interface{}{
		"substances": summaries,
		"count":      len(summaries),
	})
}

// Substance returns the report index for one substance. An unknown
// substance yields an empty index rather than a 404 so clients can
// render the page and offer to start a scrape.
func (h *Handler) Substance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key := store.NormalizeKey(name)
	if key == "" {
		WriteBadRequest(w, r, "invalid substance name")
		return
	}

	index := h.store.GetIndex(key)
	if index == nil {
		index = &models.Index{
			SubstanceName: name,
			Reports:       []models.IndexEntry{},
			LastScraped:   "",
		}
	}

	WriteSuccess(w, r, index)
}

// Report returns one full report, body texts included.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reportID := chi.URLParam(r, "id")

	key := store.NormalizeKey(name)
	if key == "" {
		WriteBadRequest(w, r, "invalid substance name")
		return
	}

	report, err := h.store.GetReport(key, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, r, "report not found")
			return
		}
		NewResponseWriter(w, r).StoreError(err)
		return
	}

	WriteSuccess(w, r, report)
}

// WebSocket upgrades the connection and registers the client with the hub.
// Incoming start_scraping messages and disconnects are routed to the
// aggregation service by the hub's handlers, wired in Router.Setup.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// upgrader builds a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS origins. Non-browser clients that omit Origin are allowed; the
// endpoints carry no credentials.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
