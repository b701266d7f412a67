// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tripvault/internal/aggregate"
	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/store"
	ws "github.com/tomtom215/tripvault/internal/websocket"
)

// Router assembles the HTTP surface: middleware stack, REST routes,
// the WebSocket endpoint, and Prometheus metrics.
type Router struct {
	handler    *Handler
	middleware *Middleware
	hub        *ws.Hub
	service    *aggregate.Service
}

// NewRouter creates a router over the given store, hub, and service.
func NewRouter(cfg config.APIConfig, st *store.Store, hub *ws.Hub, service *aggregate.Service) *Router {
	mw := NewMiddleware(&MiddlewareConfig{
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})

	return &Router{
		handler:    NewHandler(st, hub, service, cfg.CORSOrigins),
		middleware: mw,
		hub:        hub,
		service:    service,
	}
}

// Setup wires the hub's message handlers to the aggregation service and
// returns the fully configured HTTP handler.
func (router *Router) Setup() http.Handler {
	router.hub.SetMessageHandler(func(observerID string, msg ws.ClientMessage) {
		switch msg.Type {
		case ws.MessageTypeStartScraping:
			router.service.StartScraping(msg.Substance, observerID)
		default:
			logging.Warn().
				Str("observer_id", observerID).
				Str("type", msg.Type).
				Msg("Unknown WebSocket message type")
		}
	})
	router.hub.SetDisconnectHandler(router.service.Disconnect)

	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(RequestMetrics())

		r.Get("/substances", router.handler.Substances)
		r.Get("/substances/{name}", router.handler.Substance)
		r.Get("/substances/{name}/reports/{id}", router.handler.Report)
	})

	// WebSocket upgrades are rate limited separately; the limit applies
	// to handshakes, not established connections.
	r.With(router.middleware.RateLimitWebSocket()).Get("/api/v1/ws", router.handler.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
