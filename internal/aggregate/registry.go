// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package aggregate is the orchestration core: the job registry that
// guarantees at most one running scrape per substance, and the pipeline
// that lists, deduplicates, fetches, translates, and persists reports
// across the configured sources while streaming progress events to the
// job's subscribers.
package aggregate

import (
	"sync"

	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/metrics"
)

// Gateway delivers one event to one observer. Implemented by the WebSocket
// hub; delivery is fire-and-forget and may silently drop.
type Gateway interface {
	Deliver(observerID, event string, payload any)
}

// job is the in-memory record of one running scrape. Lives only inside the
// registry; the pipeline never sees subscriber state.
type job struct {
	key         string
	display     string
	subscribers map[string]struct{}
}

// Registry owns the live job map. Every operation takes the single mutex,
// keeping the five operations linearizable with respect to each other;
// critical sections hold no I/O (event delivery happens after the
// subscriber snapshot is taken).
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*job
	gateway Gateway
}

func NewRegistry(gateway Gateway) *Registry {
	return &Registry{
		jobs:    make(map[string]*job),
		gateway: gateway,
	}
}

// Submit either attaches the observer to a running job for the key
// (started=false) or creates a new job with the observer as its first
// subscriber (started=true). The caller launches the pipeline only when
// started is true.
func (r *Registry) Submit(key, display, observerID string) (started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[key]; ok {
		j.subscribers[observerID] = struct{}{}
		metrics.JobsRejected.Inc()
		return false
	}

	r.jobs[key] = &job{
		key:         key,
		display:     display,
		subscribers: map[string]struct{}{observerID: {}},
	}
	metrics.JobsStarted.Inc()
	metrics.JobsActive.Set(float64(len(r.jobs)))
	return true
}

// Subscribe attaches an observer to a running job. A no-op when no job
// exists for the key: the job may have just finished, and the observer
// simply misses trailing events.
func (r *Registry) Subscribe(key, observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[key]; ok {
		j.subscribers[observerID] = struct{}{}
	}
}

// Unsubscribe removes the observer from every job's subscriber set.
// Called on disconnect; idempotent. Jobs keep running with an empty
// subscriber set.
func (r *Registry) Unsubscribe(observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		delete(j.subscribers, observerID)
	}
}

// Broadcast forwards one event to every current subscriber of the key's
// job. A broadcast racing job teardown is a silent no-op. The subscriber
// set is snapshotted under the lock and delivery happens outside it, so a
// slow gateway never serializes registry operations.
func (r *Registry) Broadcast(key, event string, payload any) {
	r.mu.Lock()
	j, ok := r.jobs[key]
	var observers []string
	if ok {
		observers = make([]string, 0, len(j.subscribers))
		for id := range j.subscribers {
			observers = append(observers, id)
		}
	}
	r.mu.Unlock()

	for _, id := range observers {
		r.gateway.Deliver(id, event, payload)
	}
}

// Complete removes the job entry, letting the next Submit for the key
// start fresh. Must run exactly once per job on every pipeline exit path.
func (r *Registry) Complete(key string) {
	r.mu.Lock()
	_, existed := r.jobs[key]
	delete(r.jobs, key)
	metrics.JobsActive.Set(float64(len(r.jobs)))
	r.mu.Unlock()

	if !existed {
		logging.Warn().Str("key", key).Msg("complete called for unknown job")
	}
}

// Running reports whether a job exists for the key.
func (r *Registry) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[key]
	return ok
}
