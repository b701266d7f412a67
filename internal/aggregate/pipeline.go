// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package aggregate

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/metrics"
	"github.com/tomtom215/tripvault/internal/models"
	"github.com/tomtom215/tripvault/internal/sources"
)

// Store is the slice of the report cache the pipeline needs.
type Store interface {
	GetIndex(substanceKey string) *models.Index
	CachedIDs(substanceKey string) map[string]struct{}
	IsCached(substanceKey, reportID string) bool
	SaveReport(substanceKey, substanceName string, report *models.Report) error
}

// Translator fills in a report's translated body. Chunk failures degrade
// internally; the only error surfaced is context cancellation.
type Translator interface {
	TranslateReport(ctx context.Context, report *models.Report) error
	Target() string
}

// Pipeline drives one substance's end-to-end aggregation across the
// configured sources, in order, one report at a time. All progress goes
// through the registry's Broadcast; the pipeline knows nothing about
// subscribers.
type Pipeline struct {
	registry   *Registry
	store      Store
	sources    []sources.Source
	translator Translator
	eventDelay rate.Limit
	maxReports int
}

func NewPipeline(registry *Registry, store Store, srcs []sources.Source, translator Translator, cfg config.ScrapeConfig) *Pipeline {
	eventDelay := rate.Inf
	if cfg.EventDelay > 0 {
		eventDelay = rate.Every(cfg.EventDelay)
	}
	return &Pipeline{
		registry:   registry,
		store:      store,
		sources:    srcs,
		translator: translator,
		eventDelay: eventDelay,
		maxReports: cfg.MaxReports,
	}
}

// Run executes one job. The registry entry is released on every exit path,
// panics included, so the substance can always be scraped again.
func (p *Pipeline) Run(ctx context.Context, key, display string) {
	defer p.registry.Complete(key)
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Str("key", key).Interface("panic", rec).Msg("scraping pipeline panicked")
			p.registry.Broadcast(key, models.EventScrapingError, models.ErrorEvent{
				Message: "Erreur interne pendant le scraping.",
			})
		}
	}()

	p.run(ctx, key, display)
}

func (p *Pipeline) run(ctx context.Context, key, display string) {
	log := logging.With().Str("key", key).Str("substance", display).Logger()
	log.Info().Msg("scraping job started")

	cached := p.store.CachedIDs(key)
	hadPriorCache := len(cached) > 0
	limiter := rate.NewLimiter(p.eventDelay, 1)

	listedAny := false
	addedThisRun := 0

	for _, src := range p.sources {
		if ctx.Err() != nil {
			log.Warn().Msg("scraping job canceled mid-run")
			break
		}

		p.registry.Broadcast(key, models.EventScrapingStatus, models.StatusEvent{
			Phase:   models.PhaseListing,
			Source:  src.Name(),
			Message: fmt.Sprintf("Récupération de la liste des rapports pour '%s' (%s)...", display, src.Name()),
		})

		metas, err := src.ListReports(ctx, display)
		if err != nil {
			// One broken source must not take the job down.
			log.Warn().Err(err).Str("source", src.Name()).Msg("source listing failed, continuing with remaining sources")
			metrics.SourceListErrors.WithLabelValues(src.Name()).Inc()
			p.registry.Broadcast(key, models.EventScrapingStatus, models.StatusEvent{
				Phase:   models.PhaseError,
				Source:  src.Name(),
				Message: fmt.Sprintf("La source %s est indisponible.", src.Name()),
			})
			continue
		}
		listedAny = listedAny || len(metas) > 0

		newMetas := make([]models.ReportMeta, 0, len(metas))
		for _, meta := range metas {
			if _, ok := cached[meta.ID]; !ok {
				newMetas = append(newMetas, meta)
			}
		}
		alreadyCached := len(metas) - len(newMetas)
		if p.maxReports > 0 && len(newMetas) > p.maxReports {
			newMetas = newMetas[:p.maxReports]
		}

		p.registry.Broadcast(key, models.EventScrapingStart, models.StartEvent{
			Source:          src.Name(),
			Total:           len(newMetas),
			TotalWithCached: len(metas),
			AlreadyCached:   alreadyCached,
		})

		if len(newMetas) == 0 {
			p.registry.Broadcast(key, models.EventScrapingStatus, models.StatusEvent{
				Phase:   models.PhaseCached,
				Source:  src.Name(),
				Message: fmt.Sprintf("Tous les rapports de %s sont déjà en cache.", src.Name()),
			})
			continue
		}

		addedThisRun += p.runSource(ctx, key, display, src, newMetas, cached, limiter)
	}

	// Terminal event, always. The reloaded index is the source of truth for
	// the final count.
	total := 0
	if index := p.store.GetIndex(key); index != nil {
		total = len(index.Reports)
	}

	if !listedAny && !hadPriorCache {
		p.registry.Broadcast(key, models.EventScrapingError, models.ErrorEvent{
			Message: fmt.Sprintf("Aucun rapport trouvé pour '%s'.", display),
		})
	}

	message := fmt.Sprintf("Scraping terminé ! %d rapports disponibles.", total)
	switch {
	case total == 0:
		message = fmt.Sprintf("Aucun rapport trouvé pour '%s'.", display)
	case addedThisRun == 0:
		message = "Tous les rapports sont déjà en cache."
	}

	p.registry.Broadcast(key, models.EventScrapingComplete, models.CompleteEvent{
		TotalReports: total,
		Message:      message,
	})
	log.Info().Int("total_reports", total).Int("added", addedThisRun).Msg("scraping job finished")
}

// runSource fetches, translates, and persists one source's new reports in
// listing order, returning how many were persisted. cached is shared
// across sources so overlapping listings within the run stay deduplicated.
func (p *Pipeline) runSource(ctx context.Context, key, display string, src sources.Source, metas []models.ReportMeta, cached map[string]struct{}, limiter *rate.Limiter) int {
	total := len(metas)
	added := 0

	for i, meta := range metas {
		if ctx.Err() != nil {
			return added
		}
		current := i + 1

		// Late re-check: a concurrent producer may have persisted this ID
		// after our listing snapshot.
		if p.store.IsCached(key, meta.ID) {
			cached[meta.ID] = struct{}{}
			metrics.ReportsSkippedCached.Inc()
			continue
		}

		p.registry.Broadcast(key, models.EventReportScraping, models.ProgressEvent{
			Source:  src.Name(),
			Current: current,
			Total:   total,
			Title:   meta.Title,
		})

		report, err := src.FetchReport(ctx, meta)
		if err != nil {
			logging.Warn().Err(err).Str("report", meta.ID).Msg("report fetch failed, skipping")
			continue
		}
		if report == nil {
			logging.Debug().Str("report", meta.ID).Msg("report has no usable content, skipping")
			continue
		}

		if report.Date == "" {
			report.Date = meta.Date
		}

		if report.Language != p.translator.Target() {
			p.registry.Broadcast(key, models.EventReportTranslating, models.ProgressEvent{
				Current: current,
				Total:   total,
				Title:   meta.Title,
			})
		}
		// Target-language reports pass through: the translator copies the
		// body over verbatim.
		if err := p.translator.TranslateReport(ctx, report); err != nil {
			return added
		}

		if err := p.store.SaveReport(key, display, report); err != nil {
			logging.Error().Err(err).Str("report", meta.ID).Msg("report persist failed, skipping")
			continue
		}
		cached[meta.ID] = struct{}{}
		added++
		metrics.ReportsScraped.WithLabelValues(src.Name()).Inc()

		p.registry.Broadcast(key, models.EventReportScraped, models.ReportScrapedEvent{
			Source:  src.Name(),
			Current: current,
			Total:   total,
			Report:  report.IndexEntry(),
		})

		if err := limiter.Wait(ctx); err != nil {
			return added
		}
	}

	return added
}
