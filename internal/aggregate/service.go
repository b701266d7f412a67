// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/models"
	"github.com/tomtom215/tripvault/internal/store"
)

// Service is the inbound edge of the core: it validates scraping requests,
// resolves substance names to keys, and turns accepted requests into
// background pipeline runs.
type Service struct {
	registry *Registry
	pipeline *Pipeline
	gateway  Gateway

	// baseCtx bounds job lifetimes to the process, not to any request.
	baseCtx context.Context
}

func NewService(baseCtx context.Context, registry *Registry, pipeline *Pipeline, gateway Gateway) *Service {
	return &Service{
		registry: registry,
		pipeline: pipeline,
		gateway:  gateway,
		baseCtx:  baseCtx,
	}
}

// StartScraping handles one observer's request to scrape a substance.
// Invalid names are reported to that observer only, before the registry is
// involved. When a job for the key is already running the observer is
// attached to it and told so; otherwise a new job starts in the
// background, never joined by this call.
func (s *Service) StartScraping(substance, observerID string) {
	name := strings.TrimSpace(substance)
	if name == "" {
		s.gateway.Deliver(observerID, models.EventScrapingError, models.ErrorEvent{
			Message: "Nom de substance vide.",
		})
		return
	}

	key := store.NormalizeKey(name)
	if key == "" {
		s.gateway.Deliver(observerID, models.EventScrapingError, models.ErrorEvent{
			Message: fmt.Sprintf("Nom de substance invalide : '%s'.", name),
		})
		return
	}

	started := s.registry.Submit(key, name, observerID)
	if !started {
		logging.Debug().Str("key", key).Str("observer_id", observerID).Msg("observer joined running job")
		s.gateway.Deliver(observerID, models.EventScrapingStatus, models.StatusEvent{
			Phase:   models.PhaseRunning,
			Message: fmt.Sprintf("Un scraping est déjà en cours pour '%s'.", name),
		})
		return
	}

	go s.pipeline.Run(s.baseCtx, key, name)
}

// Disconnect drops the observer from every job's subscriber set. Jobs keep
// running; only future broadcasts stop reaching the observer.
func (s *Service) Disconnect(observerID string) {
	s.registry.Unsubscribe(observerID)
}
