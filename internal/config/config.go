// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package config loads and validates the Tripvault configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML config
// file, and TRIPVAULT_-prefixed environment variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/tripvault/internal/validation"
)

// Config is the root configuration for the Tripvault server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cache     CacheConfig     `koanf:"cache"`
	Scrape    ScrapeConfig    `koanf:"scrape"`
	Translate TranslateConfig `koanf:"translate"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CacheConfig holds the persistent report cache settings.
type CacheConfig struct {
	// Dir is the BadgerDB directory. Created on startup if missing.
	Dir string `koanf:"dir" validate:"required"`

	// InMemory runs Badger without disk persistence. Test/dev only.
	InMemory bool `koanf:"in_memory"`
}

// ScrapeConfig holds source adapter and pipeline settings.
type ScrapeConfig struct {
	// Sources is the ordered list of enabled source adapters.
	// The pipeline processes sources strictly in this order.
	Sources []string `koanf:"sources" validate:"min=1,dive,oneof=erowid psychonaut psychonautwiki"`

	// RequestDelay is the minimum interval between HTTP requests to any
	// one external source.
	RequestDelay time.Duration `koanf:"request_delay"`

	// RequestTimeout bounds each individual source HTTP call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// EventDelay is the pacing delay between per-report progress events.
	EventDelay time.Duration `koanf:"event_delay"`

	// MaxPagesPerCategory caps forum category pagination (psychonaut).
	MaxPagesPerCategory int `koanf:"max_pages_per_category" validate:"gte=1"`

	// MaxReports optionally caps reports fetched per source per run.
	// Zero means unlimited.
	MaxReports int `koanf:"max_reports" validate:"gte=0"`
}

// TranslateConfig holds Transform Stage settings.
type TranslateConfig struct {
	// Target is the language reports are translated into. Reports whose
	// source language already matches are persisted untranslated.
	Target string `koanf:"target" validate:"required"`

	// Endpoint is the translation HTTP endpoint.
	Endpoint string `koanf:"endpoint" validate:"required,url"`

	// ChunkSize is the maximum characters per translation request.
	ChunkSize int `koanf:"chunk_size" validate:"gte=500"`

	// ChunkDelay is the pause between chunk requests.
	ChunkDelay time.Duration `koanf:"chunk_delay"`

	// MaxRetries is the per-chunk retry budget.
	MaxRetries int `koanf:"max_retries" validate:"gte=1"`

	// RetryDelay is the base backoff between retries (grows linearly).
	RetryDelay time.Duration `koanf:"retry_delay"`

	// Timeout bounds each translation HTTP call.
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds REST/WebSocket surface settings.
type APIConfig struct {
	// RateLimitRequests/RateLimitWindow shape the per-IP API rate limit.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed origins; "*" allows all.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Dir:      "/data/tripvault",
			InMemory: false,
		},
		Scrape: ScrapeConfig{
			Sources:             []string{"erowid", "psychonaut", "psychonautwiki"},
			RequestDelay:        1500 * time.Millisecond,
			RequestTimeout:      15 * time.Second,
			EventDelay:          200 * time.Millisecond,
			MaxPagesPerCategory: 5,
			MaxReports:          0,
		},
		Translate: TranslateConfig{
			Target:     "fr",
			Endpoint:   "https://translate.googleapis.com/translate_a/single",
			ChunkSize:  4500,
			ChunkDelay: 500 * time.Millisecond,
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
			Timeout:    20 * time.Second,
		},
		API: APIConfig{
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration via validate tags plus cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scrape.RequestDelay < 0 || c.Scrape.EventDelay < 0 {
		return fmt.Errorf("invalid configuration: delays must not be negative")
	}
	if c.Translate.ChunkDelay < 0 || c.Translate.RetryDelay < 0 {
		return fmt.Errorf("invalid configuration: translate delays must not be negative")
	}
	return nil
}
