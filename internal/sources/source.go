// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package sources contains the adapters for the external report providers:
// the Erowid experience vaults, the psychonaut.fr forum, and the
// PsychonautWiki MediaWiki API. Each adapter speaks one provider's HTML or
// API shape and produces uniform models.ReportMeta / models.Report values;
// everything provider-specific stays inside this package.
package sources

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/models"
)

// Source is one external report provider.
//
// ListReports returns listing-level metadata for every report the provider
// has for the substance; an error means the whole listing failed (the
// pipeline degrades to the other sources). FetchReport loads one full
// report; (nil, nil) means the report exists in the listing but has no
// usable content and should be skipped without noise.
type Source interface {
	Name() string
	ListReports(ctx context.Context, substance string) ([]models.ReportMeta, error)
	FetchReport(ctx context.Context, meta models.ReportMeta) (*models.Report, error)
}

// Build constructs the enabled sources in configured order.
func Build(cfg config.ScrapeConfig) ([]Source, error) {
	srcs := make([]Source, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		switch name {
		case "erowid":
			srcs = append(srcs, NewErowid(cfg))
		case "psychonaut":
			srcs = append(srcs, NewPsychonaut(cfg))
		case "psychonautwiki":
			srcs = append(srcs, NewPsychonautWiki(cfg))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return srcs, nil
}

// blockText extracts the text of a selection with newlines between block
// elements, the way a browser would render it. goquery's Text() runs
// everything together, which destroys paragraph structure in report bodies.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		writeNodeText(&b, node)
	}
	return collapseBlankLines(b.String())
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "script", "style":
			return
		}
		if isBlockElement(n.Data) {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNodeText(b, c)
		}
		if isBlockElement(n.Data) {
			b.WriteString("\n")
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "tr", "li", "ul", "ol", "table", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6", "pre", "section", "article":
		return true
	}
	return false
}

// collapseBlankLines trims each line and squeezes runs of blank lines down
// to one, then trims the whole text.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
