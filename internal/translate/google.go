// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tripvault/internal/config"
)

var errEmptyTranslation = errors.New("translate: empty translation")

// googleBackend calls the free web endpoint
// (translate.googleapis.com/translate_a/single, client=gtx). No API key;
// in exchange the endpoint rate-limits aggressively, which is why the
// Translator paces chunks and retries.
type googleBackend struct {
	endpoint string
	client   *http.Client
}

func newGoogleBackend(cfg config.TranslateConfig) *googleBackend {
	return &googleBackend{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *googleBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	form := url.Values{
		"client": {"gtx"},
		"sl":     {source},
		"tl":     {target},
		"dt":     {"t"},
		"q":      {text},
	}

	// POSTed as a form: chunks run to thousands of characters, far past
	// what belongs in a query string.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate request: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	return parseGtxResponse(body)
}

// parseGtxResponse extracts the translated text from the gtx wire shape:
// a nested array whose first element is a list of [translated, original,
// ...] segment pairs.
func parseGtxResponse(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(raw) == 0 {
		return "", errEmptyTranslation
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("decode segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(seg[0], &piece); err != nil {
			continue
		}
		b.WriteString(piece)
	}

	out := b.String()
	if out == "" {
		return "", errEmptyTranslation
	}
	return out, nil
}
