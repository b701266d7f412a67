// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/models"
)

const (
	psywikiBaseURL = "https://psychonautwiki.org"

	// Search result cap; the wiki holds at most a few dozen experience
	// pages per substance.
	psywikiSearchLimit = 50
)

var (
	psywikiExperienceRe = regexp.MustCompile(`^Experience:\s*`)
	psywikiIDCleanRe    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// psywikiSearchResponse is the slice of the MediaWiki query API response
// the adapter cares about.
type psywikiSearchResponse struct {
	Continue *struct {
		Sroffset int `json:"sroffset"`
	} `json:"continue"`
	Query struct {
		Search []struct {
			Title  string `json:"title"`
			PageID int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

// PsychonautWiki finds experience reports through the wiki's MediaWiki
// search API ("Experience:" namespace-0 pages) and scrapes the wiki pages
// for the bodies.
type PsychonautWiki struct {
	fetcher *fetcher
	baseURL string
}

func NewPsychonautWiki(cfg config.ScrapeConfig) *PsychonautWiki {
	return &PsychonautWiki{
		fetcher: newFetcher("psychonautwiki", "en-US,en;q=0.9", cfg),
		baseURL: psywikiBaseURL,
	}
}

func (w *PsychonautWiki) Name() string { return "psychonautwiki" }

// ListReports pages through the search API until the cap, exhaustion, or a
// page with no usable results.
func (w *PsychonautWiki) ListReports(ctx context.Context, substance string) ([]models.ReportMeta, error) {
	var metas []models.ReportMeta
	offset := 0

	for len(metas) < psywikiSearchLimit {
		params := url.Values{
			"action":      {"query"},
			"list":        {"search"},
			"srsearch":    {"intitle:Experience " + substance},
			"srnamespace": {"0"},
			"srlimit":     {strconv.Itoa(min(psywikiSearchLimit-len(metas), 50))},
			"sroffset":    {strconv.Itoa(offset)},
			"format":      {"json"},
		}

		var resp psywikiSearchResponse
		if err := w.fetcher.getJSON(ctx, w.baseURL+"/w/api.php?"+params.Encode(), &resp); err != nil {
			if len(metas) > 0 {
				// Partial listing beats none.
				logging.Warn().Err(err).Str("substance", substance).Msg("psychonautwiki search page failed, keeping partial listing")
				break
			}
			return nil, fmt.Errorf("psychonautwiki search for %q: %w", substance, err)
		}

		if len(resp.Query.Search) == 0 {
			break
		}

		for _, item := range resp.Query.Search {
			if !strings.HasPrefix(item.Title, "Experience:") {
				continue
			}
			metas = append(metas, w.metaFromTitle(item.Title, substance))
		}

		if resp.Continue == nil {
			break
		}
		offset = resp.Continue.Sroffset
	}

	logging.Info().Str("substance", substance).Int("count", len(metas)).Msg("psychonautwiki listing complete")
	return metas, nil
}

func (w *PsychonautWiki) metaFromTitle(title, substance string) models.ReportMeta {
	display := psywikiExperienceRe.ReplaceAllString(title, "")

	slug := strings.ReplaceAll(title, " ", "_")
	pageURL := w.baseURL + "/wiki/" + url.PathEscape(slug)

	cleanID := psywikiIDCleanRe.ReplaceAllString(
		strings.TrimSpace(strings.TrimPrefix(title, "Experience:")), "_")

	return models.ReportMeta{
		ID:             "psychonautwiki_" + cleanID,
		Source:         "psychonautwiki",
		Title:          display,
		URL:            pageURL,
		SubstancesText: substance,
	}
}

// FetchReport scrapes one experience wiki page. A page with no content
// body is skipped.
func (w *PsychonautWiki) FetchReport(ctx context.Context, meta models.ReportMeta) (*models.Report, error) {
	doc, err := w.fetcher.document(ctx, meta.URL)
	if err != nil {
		return nil, fmt.Errorf("psychonautwiki page %s: %w", meta.ID, err)
	}

	title := strings.TrimSpace(doc.Find("h1#firstHeading").First().Text())
	if title == "" {
		title = meta.Title
	}
	title = psywikiExperienceRe.ReplaceAllString(title, "")

	content := doc.Find("div#mw-content-text").First()
	content.Find("div.toc, span.mw-editsection, div.navbox, div.noprint").Remove()
	bodyText := blockText(content)
	if bodyText == "" {
		return nil, nil
	}

	return &models.Report{
		ID:           meta.ID,
		Source:       "psychonautwiki",
		Title:        title,
		URL:          meta.URL,
		Language:     "en",
		BodyOriginal: bodyText,
	}, nil
}
