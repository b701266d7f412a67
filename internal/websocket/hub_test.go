// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeClient builds a registered client without a real connection. Only
// the send channel matters for delivery tests.
func fakeClient(id string, buffer int) *Client {
	return &Client{id: id, send: make(chan Message, buffer)}
}

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, cancel
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
}

func TestDeliverToRegisteredObserver(t *testing.T) {
	hub, _ := runHub(t)

	c := fakeClient("obs-1", 4)
	hub.Register <- c
	waitForCount(t, hub, 1)

	hub.Deliver("obs-1", "scraping_status", map[string]string{"message": "hello"})

	select {
	case msg := <-c.send:
		if msg.Type != "scraping_status" {
			t.Errorf("Type = %q, want scraping_status", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestDeliverUnknownObserverDoesNotBlock(t *testing.T) {
	hub, _ := runHub(t)

	done := make(chan struct{})
	go func() {
		hub.Deliver("nobody", "scraping_status", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on an unknown observer")
	}
}

func TestDeliverDropsWhenBufferFull(t *testing.T) {
	hub, _ := runHub(t)

	c := fakeClient("obs-1", 1)
	hub.Register <- c
	waitForCount(t, hub, 1)

	// Nothing drains c.send; second delivery must drop, not block.
	hub.Deliver("obs-1", "scraping_status", 1)
	done := make(chan struct{})
	go func() {
		hub.Deliver("obs-1", "scraping_status", 2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full buffer")
	}

	if got := len(c.send); got != 1 {
		t.Errorf("len(send) = %d, want 1", got)
	}
}

func TestUnregisterInvokesDisconnectHandler(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	var disconnected []string
	hub.SetDisconnectHandler(func(observerID string) {
		mu.Lock()
		disconnected = append(disconnected, observerID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()

	c := fakeClient("obs-1", 1)
	hub.Register <- c
	waitForCount(t, hub, 1)
	hub.Unregister <- c
	waitForCount(t, hub, 0)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(disconnected)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(disconnected) != 1 || disconnected[0] != "obs-1" {
		t.Fatalf("disconnected = %v, want [obs-1]", disconnected)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	c := fakeClient("obs-1", 1)
	hub.Register <- c
	waitForCount(t, hub, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel received a message instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after shutdown", hub.ClientCount())
	}
}

// End-to-end over a real connection: upgrade, deliver, receive, and route
// an inbound start_scraping message.
func TestClientRoundTrip(t *testing.T) {
	hub, _ := runHub(t)

	type inbound struct {
		observerID string
		msg        ClientMessage
	}
	received := make(chan inbound, 1)
	hub.SetMessageHandler(func(observerID string, msg ClientMessage) {
		received <- inbound{observerID, msg}
	})

	upgrader := websocket.Upgrader{}
	clientID := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn)
		clientID <- client.ID()
		hub.Register <- client
		client.Start()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		defer resp.Body.Close()
	}

	var observerID string
	select {
	case observerID = <-clientID:
	case <-time.After(2 * time.Second):
		t.Fatal("client never registered")
	}
	waitForCount(t, hub, 1)

	// Outbound delivery reaches the dialer.
	hub.Deliver(observerID, "scraping_start", map[string]int{"total": 3})
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "scraping_start" {
		t.Errorf("Type = %q, want scraping_start", msg.Type)
	}

	// Inbound start_scraping reaches the handler with the observer ID.
	if err := conn.WriteJSON(ClientMessage{Type: MessageTypeStartScraping, Substance: "LSD"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	select {
	case in := <-received:
		if in.observerID != observerID {
			t.Errorf("observerID = %q, want %q", in.observerID, observerID)
		}
		if in.msg.Type != MessageTypeStartScraping || in.msg.Substance != "LSD" {
			t.Errorf("msg = %+v", in.msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message never routed")
	}
}
