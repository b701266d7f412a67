// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port 5000, got %d", cfg.Server.Port)
	}
	if len(cfg.Scrape.Sources) != 3 {
		t.Errorf("expected 3 default sources, got %v", cfg.Scrape.Sources)
	}
	if cfg.Translate.Target != "fr" {
		t.Errorf("expected default target fr, got %q", cfg.Translate.Target)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }},
		{"no sources", func(c *Config) { c.Scrape.Sources = nil }},
		{"unknown source", func(c *Config) { c.Scrape.Sources = []string{"bluelight"} }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty target", func(c *Config) { c.Translate.Target = "" }},
		{"bad endpoint", func(c *Config) { c.Translate.Endpoint = "not a url" }},
		{"negative delay", func(c *Config) { c.Scrape.RequestDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TRIPVAULT_SERVER_PORT", "server.port"},
		{"TRIPVAULT_SCRAPE_REQUEST_DELAY", "scrape.request_delay"},
		{"TRIPVAULT_API_RATE_LIMIT_REQUESTS", "api.rate_limit_requests"},
		{"TRIPVAULT_CACHE_DIR", "cache.dir"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 8080
translate:
  target: de
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("TRIPVAULT_SERVER_PORT", "9090") // env outranks file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected env override port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Translate.Target != "de" {
		t.Errorf("expected file target de, got %q", cfg.Translate.Target)
	}
	// Untouched values keep defaults.
	if cfg.Scrape.MaxPagesPerCategory != 5 {
		t.Errorf("expected default max pages 5, got %d", cfg.Scrape.MaxPagesPerCategory)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure for negative port")
	}
}
