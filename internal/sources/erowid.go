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
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/models"
)

const erowidBaseURL = "https://www.erowid.org/experiences/"

// erowidSlugs maps common substance names to Erowid's URL slugs. Anything
// not listed falls back to title-cased alphanumerics, which matches most of
// Erowid's naming scheme.
var erowidSlugs = map[string]string{
	"4-ho-met":      "4HOMET",
	"4-aco-dmt":     "4AcODMT",
	"4-ho-mipt":     "4HOMiPT",
	"4-aco-mipt":    "4AcOMiPT",
	"lsd":           "LSD",
	"cannabis":      "Cannabis",
	"mdma":          "MDMA",
	"psilocybin":    "Psilocybin",
	"mushrooms":     "Mushrooms",
	"dmt":           "DMT",
	"ketamine":      "Ketamine",
	"mescaline":     "Mescaline",
	"salvia":        "Salvia",
	"dxm":           "DXM",
	"cocaine":       "Cocaine",
	"amphetamines":  "Amphetamines",
	"2c-b":          "2CB",
	"2c-e":          "2CE",
	"2c-i":          "2CI",
	"nbome":         "NBOMe",
	"methoxetamine": "Methoxetamine",
	"mxe":           "Methoxetamine",
	"nitrous oxide": "NitrousOxide",
	"ayahuasca":     "Ayahuasca",
	"ibogaine":      "Ibogaine",
	"kratom":        "Kratom",
	"heroin":        "Heroin",
	"oxycodone":     "Oxycodone",
	"ghb":           "GHB",
	"alcohol":       "Alcohol",
}

var (
	erowidIDPattern       = regexp.MustCompile(`ID=(\d+)`)
	erowidNonAlnumPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)
	erowidPublishedRe     = regexp.MustCompile(`Published:\s*(.+)`)
	erowidGenderRe        = regexp.MustCompile(`Gender:\s*(.+)`)
	erowidAgeRe           = regexp.MustCompile(`Age.*?:\s*(.+)`)
)

// Erowid scrapes the Erowid experience vaults. Listings live on a
// per-substance page with per-category "more" pages holding the full
// index; individual reports are exp.php pages.
type Erowid struct {
	fetcher *fetcher
	baseURL string
}

func NewErowid(cfg config.ScrapeConfig) *Erowid {
	return &Erowid{
		fetcher: newFetcher("erowid", "en-US,en;q=0.9", cfg),
		baseURL: erowidBaseURL,
	}
}

func (e *Erowid) Name() string { return "erowid" }

func erowidSlug(substance string) string {
	key := strings.ToLower(strings.TrimSpace(substance))
	if slug, ok := erowidSlugs[key]; ok {
		return slug
	}
	return erowidNonAlnumPattern.ReplaceAllString(cases.Title(language.English).String(substance), "")
}

// ListReports collects report metadata from the substance's main page and
// every per-category "more" page, deduplicated by report ID.
func (e *Erowid) ListReports(ctx context.Context, substance string) ([]models.ReportMeta, error) {
	slug := erowidSlug(substance)
	mainURL := e.baseURL + "subs/exp_" + slug + ".shtml"

	doc, err := e.fetcher.document(ctx, mainURL)
	if err != nil {
		return nil, fmt.Errorf("erowid main page for %q: %w", substance, err)
	}

	// Per-category "more" pages carry the complete listings; the main page
	// only shows a sample of each category.
	var moreURLs []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "exp_"+slug+"_") && strings.HasSuffix(href, ".shtml") {
			full := resolveURL(mainURL, href)
			if _, dup := seen[full]; !dup {
				seen[full] = struct{}{}
				moreURLs = append(moreURLs, full)
			}
		}
	})

	byID := make(map[string]models.ReportMeta)
	order := make([]string, 0)
	// Keep the first occurrence: the "more" pages carry the date column
	// that the main page lacks.
	add := func(metas []models.ReportMeta) {
		for _, m := range metas {
			if _, dup := byID[m.ID]; dup {
				continue
			}
			byID[m.ID] = m
			order = append(order, m.ID)
		}
	}

	for _, moreURL := range moreURLs {
		catDoc, err := e.fetcher.document(ctx, moreURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warn().Err(err).Str("url", moreURL).Msg("erowid category page failed, continuing")
			continue
		}
		add(e.parseListing(catDoc))
	}

	// The main page can hold categories without "more" links.
	add(e.parseListing(doc))

	metas := make([]models.ReportMeta, 0, len(order))
	for _, id := range order {
		metas = append(metas, byID[id])
	}
	logging.Info().Str("substance", substance).Int("count", len(metas)).Msg("erowid listing complete")
	return metas, nil
}

// parseListing extracts report rows from a listing page. Two row shapes
// occur: the main substance page uses title | author | substances, the
// "more" pages pad with two leading cells and append a date column.
func (e *Erowid) parseListing(doc *goquery.Document) []models.ReportMeta {
	var metas []models.ReportMeta
	doc.Find(`a[href*="exp.php?ID="]`).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		m := erowidIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}

		tr := link.Closest("tr")
		if tr.Length() == 0 {
			return
		}

		tds := tr.Find("td")
		var author, substancesText, date string
		switch {
		case tds.Length() == 3:
			author = strings.TrimSpace(tds.Eq(1).Text())
			substancesText = strings.TrimSpace(tds.Eq(2).Text())
		case tds.Length() >= 6:
			author = strings.TrimSpace(tds.Eq(3).Text())
			substancesText = strings.TrimSpace(tds.Eq(4).Text())
			date = strings.TrimSpace(tds.Eq(5).Text())
		}

		metas = append(metas, models.ReportMeta{
			ID:             "erowid_" + m[1],
			Source:         "erowid",
			Title:          strings.TrimSpace(link.Text()),
			Author:         author,
			Date:           date,
			URL:            resolveURL(e.baseURL, href),
			SubstancesText: substancesText,
		})
	})
	return metas
}

// FetchReport scrapes one experience report page.
func (e *Erowid) FetchReport(ctx context.Context, meta models.ReportMeta) (*models.Report, error) {
	doc, err := e.fetcher.document(ctx, meta.URL)
	if err != nil {
		return nil, fmt.Errorf("erowid report %s: %w", meta.ID, err)
	}

	title := strings.TrimSpace(doc.Find("div.title").First().Text())
	if title == "" {
		title = meta.Title
	}

	author := strings.TrimSpace(doc.Find(`a[href*="ShowAuthor"]`).First().Text())
	if author == "" {
		author = "Anonymous"
	}

	var substances []models.DoseEntry
	doc.Find("table.dosechart tr").Each(func(_ int, row *goquery.Selection) {
		tds := row.Find("td")
		if tds.Length() < 4 {
			return
		}
		entry := models.DoseEntry{
			Dose:  strings.TrimSpace(tds.Eq(1).Text()),
			Route: strings.TrimSpace(tds.Eq(2).Text()),
			Name:  strings.TrimSpace(tds.Eq(3).Text()),
		}
		if tds.Length() > 4 {
			entry.Form = strings.TrimSpace(tds.Eq(4).Text())
		}
		substances = append(substances, entry)
	})

	bodyWeight := strings.TrimSpace(doc.Find("td.bodyweight-amount").First().Text())

	var date, gender, age string
	if m := erowidPublishedRe.FindStringSubmatch(doc.Find("td.footdata-pubdate").Text()); m != nil {
		date = strings.TrimSpace(m[1])
	}
	if m := erowidGenderRe.FindStringSubmatch(doc.Find("td.footdata-gender").Text()); m != nil {
		gender = strings.TrimSpace(m[1])
	}
	if m := erowidAgeRe.FindStringSubmatch(doc.Find("td.footdata-ageofexp").Text()); m != nil {
		age = strings.TrimSpace(m[1])
	}
	categories := strings.TrimSpace(doc.Find("td.footdata-topic-list").Text())

	// The body div also contains the dosechart, bodyweight, and footdata
	// tables; strip them before extracting text.
	bodyDiv := doc.Find("div.report-text-surround").First()
	bodyDiv.Find("table").Remove()
	bodyText := blockText(bodyDiv)

	if date == "" {
		date = meta.Date
	}

	return &models.Report{
		ID:           meta.ID,
		Source:       "erowid",
		Title:        title,
		Author:       author,
		Date:         date,
		URL:          meta.URL,
		Language:     "en",
		Substances:   substances,
		BodyWeight:   bodyWeight,
		Gender:       gender,
		Age:          age,
		Categories:   categories,
		IsCombo:      len(substances) > 1,
		BodyOriginal: bodyText,
	}, nil
}

// resolveURL resolves href against base, falling back to href verbatim when
// either side fails to parse.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
