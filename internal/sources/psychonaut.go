// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package sources

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/models"
)

const psychonautBaseURL = "https://www.psychonaut.fr"

// psychonautForums maps the trip-report subforum IDs to their XenForo URL
// slugs. XenForo wants the slug in the URL and redirects when it is wrong;
// using the known slugs avoids a redirect per page.
var psychonautForums = map[int]string{
	149: "trip-reports-lsd-et-lysergamides",
	150: "trip-reports-champignons-dmt-et-tryptamines",
	151: "trip-reports-cactus-et-phenylethylamines",
	152: "trip-reports-salvia-divinorum",
	153: "trip-reports-dissociatifs",
	154: "trip-reports-cannabinoides",
	155: "trip-reports-combos",
	156: "trip-reports-trips-sobres",
	157: "trip-reports-autres",
}

// psychonautKeywords routes a substance name to the subforums worth
// browsing. A substance can live in several subforums (155 is the combos
// forum); an unmatched name falls back to browsing everything.
var psychonautKeywords = map[string][]int{
	"lsd":           {149, 155},
	"1p-lsd":        {149, 155},
	"1cp-lsd":       {149, 155},
	"al-lad":        {149, 155},
	"lsa":           {149, 155},
	"eth-lad":       {149, 155},
	"lysergamide":   {149},
	"champignons":   {150, 155},
	"mushrooms":     {150, 155},
	"psilocybin":    {150, 155},
	"psilocybine":   {150, 155},
	"dmt":           {150, 155},
	"4-ho-met":      {150, 155},
	"4-aco-dmt":     {150, 155},
	"4-ho-mipt":     {150, 155},
	"metocine":      {150, 155},
	"métocine":      {150, 155},
	"tryptamine":    {150},
	"mescaline":     {151, 155},
	"2c-b":          {151, 155},
	"2c-e":          {151, 155},
	"2c-i":          {151, 155},
	"cactus":        {151},
	"peyote":        {151},
	"san pedro":     {151},
	"nbome":         {151, 155},
	"salvia":        {152, 155},
	"salvinorine":   {152},
	"ketamine":      {153, 155},
	"kétamine":      {153, 155},
	"dxm":           {153, 155},
	"mxe":           {153, 155},
	"methoxetamine": {153, 155},
	"pcp":           {153, 155},
	"dissociatif":   {153},
	"cannabis":      {154, 155},
	"thc":           {154, 155},
	"weed":          {154, 155},
	"mdma":          {155, 157},
	"cocaine":       {157, 155},
	"cocaïne":       {157, 155},
	"amphétamine":   {157, 155},
	"amphetamine":   {157, 155},
	"speed":         {157, 155},
	"heroin":        {157, 155},
	"héroïne":       {157, 155},
	"kratom":        {157, 155},
	"ghb":           {157, 155},
	"ayahuasca":     {150, 155},
}

// Thread URLs end in ".12345/".
var psychonautThreadIDRe = regexp.MustCompile(`\.(\d+)/?$`)

// Psychonaut scrapes trip-report threads from the psychonaut.fr XenForo
// forum. Reports are already in French, so the pipeline never translates
// them.
type Psychonaut struct {
	fetcher  *fetcher
	baseURL  string
	maxPages int
}

func NewPsychonaut(cfg config.ScrapeConfig) *Psychonaut {
	return &Psychonaut{
		fetcher:  newFetcher("psychonaut", "fr-FR,fr;q=0.9,en;q=0.5", cfg),
		baseURL:  psychonautBaseURL,
		maxPages: cfg.MaxPagesPerCategory,
	}
}

func (p *Psychonaut) Name() string { return "psychonaut" }

func (p *Psychonaut) forumsFor(substance string) []int {
	key := strings.ToLower(strings.TrimSpace(substance))
	if ids, ok := psychonautKeywords[key]; ok {
		return ids
	}
	for keyword, ids := range psychonautKeywords {
		if strings.Contains(key, keyword) || strings.Contains(keyword, key) {
			return ids
		}
	}
	ids := make([]int, 0, len(psychonautForums))
	for id := range psychonautForums {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ListReports browses the relevant subforums page by page and keeps the
// threads whose title mentions the substance.
func (p *Psychonaut) ListReports(ctx context.Context, substance string) ([]models.ReportMeta, error) {
	forumIDs := p.forumsFor(substance)

	byID := make(map[string]models.ReportMeta)
	order := make([]string, 0)
	fetched := 0

	for _, forumID := range forumIDs {
		slug := psychonautForums[forumID]
		if slug == "" {
			slug = fmt.Sprintf("forum.%d", forumID)
		}

		for page := 1; page <= p.maxPages; page++ {
			pageURL := fmt.Sprintf("%s/forums/%s.%d/", p.baseURL, slug, forumID)
			if page > 1 {
				pageURL = fmt.Sprintf("%s/forums/%s.%d/page-%d", p.baseURL, slug, forumID, page)
			}

			doc, err := p.fetcher.document(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logging.Warn().Err(err).Str("url", pageURL).Msg("psychonaut forum page failed, moving on")
				break
			}
			fetched++

			for _, meta := range p.parseThreads(doc, substance) {
				if _, dup := byID[meta.ID]; !dup {
					order = append(order, meta.ID)
				}
				byID[meta.ID] = meta
			}

			if doc.Find("nav.pageNavWrapper a.pageNav-jump--next").Length() == 0 {
				break
			}
		}
	}

	if fetched == 0 {
		return nil, fmt.Errorf("psychonaut: no forum page reachable for %q", substance)
	}

	metas := make([]models.ReportMeta, 0, len(order))
	for _, id := range order {
		metas = append(metas, byID[id])
	}
	logging.Info().Str("substance", substance).Int("count", len(metas)).Msg("psychonaut listing complete")
	return metas, nil
}

func (p *Psychonaut) parseThreads(doc *goquery.Document, substance string) []models.ReportMeta {
	substanceLower := strings.ToLower(substance)
	var metas []models.ReportMeta

	doc.Find("div.structItem").Each(func(_ int, item *goquery.Selection) {
		link := item.Find(`div.structItem-title a[href*="/threads/"]`).First()
		if link.Length() == 0 {
			return
		}

		title := strings.TrimSpace(link.Text())
		if !strings.Contains(strings.ToLower(title), substanceLower) {
			return
		}

		href, _ := link.Attr("href")
		fullURL := href
		if strings.HasPrefix(href, "/") {
			fullURL = p.baseURL + href
		}

		m := psychonautThreadIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		author := strings.TrimSpace(item.Find("a.username").First().Text())

		date := ""
		if t := item.Find("time").First(); t.Length() > 0 {
			if dt, ok := t.Attr("datetime"); ok {
				date = dt
			} else {
				date = strings.TrimSpace(t.Text())
			}
		}

		metas = append(metas, models.ReportMeta{
			ID:             "psychonaut_" + m[1],
			Source:         "psychonaut",
			Title:          title,
			Author:         author,
			Date:           date,
			URL:            fullURL,
			SubstancesText: substance,
		})
	})

	return metas
}

// FetchReport extracts the first post of a thread, which is the report
// itself. Quoted replies inside the post are dropped. A thread with no
// extractable body is skipped, not an error.
func (p *Psychonaut) FetchReport(ctx context.Context, meta models.ReportMeta) (*models.Report, error) {
	doc, err := p.fetcher.document(ctx, meta.URL)
	if err != nil {
		return nil, fmt.Errorf("psychonaut thread %s: %w", meta.ID, err)
	}

	title := strings.TrimSpace(doc.Find("h1.p-title-value").First().Text())
	if title == "" {
		title = meta.Title
	}

	firstPost := doc.Find("article.message").First()
	if firstPost.Length() == 0 {
		firstPost = doc.Find("div.message-body").First()
		if firstPost.Length() == 0 {
			return nil, nil
		}
	}

	author := strings.TrimSpace(firstPost.Find("a.username").First().Text())
	if author == "" {
		if da, ok := firstPost.Find("[data-author]").First().Attr("data-author"); ok {
			author = da
		}
	}
	if author == "" {
		author = "Anonyme"
	}

	date := ""
	if t := firstPost.Find("time").First(); t.Length() > 0 {
		if dt, ok := t.Attr("datetime"); ok {
			date = dt
		} else {
			date = strings.TrimSpace(t.Text())
		}
	}

	body := firstPost.Find("div.bbWrapper").First()
	body.Find("blockquote").Remove()
	bodyText := blockText(body)
	if bodyText == "" {
		return nil, nil
	}

	return &models.Report{
		ID:           meta.ID,
		Source:       "psychonaut",
		Title:        title,
		Author:       author,
		Date:         date,
		URL:          meta.URL,
		Language:     "fr",
		BodyOriginal: bodyText,
		// Already in the target language.
		BodyTranslated: bodyText,
	}, nil
}
