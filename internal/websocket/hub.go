// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package websocket is the event gateway: it owns the WebSocket clients
// and delivers scraping events to individual observers. Delivery is
// best-effort and at-most-once: a slow or gone observer loses events and
// the pipeline never blocks on it.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/metrics"
)

// Message types understood on the inbound side.
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeStartScraping = "start_scraping"
)

// Message is the outbound envelope: the event name plus its payload.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ClientMessage is what observers send. Only ping and start_scraping are
// recognized; anything else is ignored.
type ClientMessage struct {
	Type      string `json:"type"`
	Substance string `json:"substance,omitempty"`
}

// MessageHandler receives inbound client messages with the sender's
// observer ID.
type MessageHandler func(observerID string, msg ClientMessage)

// DisconnectHandler is invoked after an observer is unregistered, so the
// job registry can drop its subscriptions.
type DisconnectHandler func(observerID string)

// Hub maintains the set of active clients and routes messages to them by
// observer ID.
type Hub struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	onMessage    MessageHandler
	onDisconnect DisconnectHandler
}

// NewHub creates a new Hub. Handlers must be set before any client
// connects.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetMessageHandler installs the inbound message handler.
func (h *Hub) SetMessageHandler(fn MessageHandler) { h.onMessage = fn }

// SetDisconnectHandler installs the disconnect handler.
func (h *Hub) SetDisconnectHandler(fn DisconnectHandler) { h.onDisconnect = fn }

// RunWithContext runs the hub loop until the context is canceled, then
// closes every client and returns ctx.Err(). Designed for suture
// supervision: a restart starts from an empty client set.
//
// Lifecycle events are drained with priority over blocking waits, so the
// client set is consistent before the next message is routed.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: pending lifecycle events.
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Blocking wait.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(count))
	logging.Info().Str("observer_id", client.id).Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	existing, ok := h.clients[client.id]
	if ok && existing == client {
		delete(h.clients, client.id)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	metrics.WebSocketConnections.Set(float64(count))
	logging.Info().Str("observer_id", client.id).Int("total_clients", count).Msg("websocket client disconnected")

	if h.onDisconnect != nil {
		h.onDisconnect(client.id)
	}
}

// shutdown closes every client in observer-ID order so shutdown behavior
// is reproducible.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		close(h.clients[id].send)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(0)
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(ids)).
		Msg("websocket hub stopped")
}

// Deliver sends one event to one observer. The send is non-blocking: when
// the observer is unknown or its buffer is full the event is dropped and
// counted, never retried.
func (h *Hub) Deliver(observerID, event string, payload any) {
	// The send stays under the read lock: the channel is only closed under
	// the write lock, after the client leaves the map, so a client found
	// here cannot have a closed send channel.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[observerID]
	if !ok {
		metrics.EventsDropped.WithLabelValues("unknown_observer").Inc()
		return
	}

	select {
	case client.send <- Message{Type: event, Data: payload}:
		metrics.EventsDelivered.WithLabelValues(event).Inc()
	default:
		metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		logging.Warn().Str("observer_id", observerID).Str("event", event).Msg("observer send buffer full, dropping event")
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
