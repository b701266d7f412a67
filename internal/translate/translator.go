// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package translate turns English report bodies into the target language
// through the free Google translate endpoint. Long bodies are chunked at
// paragraph boundaries; a chunk that keeps failing after retries falls back
// to its original text, so translation never loses content.
package translate

import (
	"context"
	"strings"
	"time"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/metrics"
	"github.com/tomtom215/tripvault/internal/models"
)

// Backend translates one chunk of text. Implementations must be safe for
// concurrent use; the Google implementation and test fakes both are.
type Backend interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Translator chunks, paces, retries, and reassembles translations.
type Translator struct {
	backend    Backend
	target     string
	chunkSize  int
	chunkDelay time.Duration
	maxRetries int
	retryDelay time.Duration
}

// New builds a Translator backed by the Google endpoint.
func New(cfg config.TranslateConfig) *Translator {
	return NewWithBackend(cfg, newGoogleBackend(cfg))
}

// NewWithBackend builds a Translator over an arbitrary backend. Tests use
// this to inject fakes.
func NewWithBackend(cfg config.TranslateConfig, backend Backend) *Translator {
	return &Translator{
		backend:    backend,
		target:     cfg.Target,
		chunkSize:  cfg.ChunkSize,
		chunkDelay: cfg.ChunkDelay,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Target returns the target language code.
func (t *Translator) Target() string { return t.target }

// TranslateReport fills in BodyTranslated. A report already in the target
// language carries its original body over verbatim; an empty body stays
// empty. Chunk-level failures degrade to the original text for that chunk,
// so this never fails a pipeline run; the only error returned is context
// cancellation.
func (t *Translator) TranslateReport(ctx context.Context, report *models.Report) error {
	if report.Language == t.target {
		report.BodyTranslated = report.BodyOriginal
		return nil
	}
	if strings.TrimSpace(report.BodyOriginal) == "" {
		report.BodyTranslated = ""
		return nil
	}

	start := time.Now()
	logging.Info().
		Str("report", report.ID).
		Int("chars", len(report.BodyOriginal)).
		Msg("translating report body")

	translated, err := t.translateText(ctx, report.BodyOriginal, report.Language)
	if err != nil {
		return err
	}

	report.BodyTranslated = translated
	metrics.ReportsTranslated.Inc()
	metrics.TranslationDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (t *Translator) translateText(ctx context.Context, text, source string) (string, error) {
	if source == "" {
		source = "en"
	}

	protected, placeholders := protectTimestamps(text)
	chunks := splitChunks(protected, t.chunkSize)
	translated := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			translated = append(translated, chunk)
			continue
		}

		out, err := t.translateChunk(ctx, chunk, source)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Keep the original text rather than dropping the chunk.
			logging.Warn().Err(err).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("chunk translation failed, keeping original")
			metrics.TranslationChunks.WithLabelValues("fallback").Inc()
			out = chunk
		} else {
			metrics.TranslationChunks.WithLabelValues("success").Inc()
		}
		translated = append(translated, out)

		if i < len(chunks)-1 {
			if err := sleepCtx(ctx, t.chunkDelay); err != nil {
				return "", err
			}
		}
	}

	return restoreTimestamps(strings.Join(translated, "\n\n"), placeholders), nil
}

// translateChunk retries with linearly growing backoff.
func (t *Translator) translateChunk(ctx context.Context, chunk, source string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		out, err := t.backend.Translate(ctx, chunk, source, t.target)
		if err == nil && out != "" {
			return out, nil
		}
		if err == nil {
			err = errEmptyTranslation
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < t.maxRetries {
			if serr := sleepCtx(ctx, t.retryDelay*time.Duration(attempt)); serr != nil {
				return "", serr
			}
		}
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
