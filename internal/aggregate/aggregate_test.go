// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/models"
	"github.com/tomtom215/tripvault/internal/sources"
	"github.com/tomtom215/tripvault/internal/store"
	"github.com/tomtom215/tripvault/internal/translate"
)

type recorded struct {
	event   string
	payload any
}

type fakeGateway struct {
	mu     sync.Mutex
	events map[string][]recorded
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(map[string][]recorded)}
}

func (g *fakeGateway) Deliver(observerID, event string, payload any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[observerID] = append(g.events[observerID], recorded{event, payload})
}

func (g *fakeGateway) eventsFor(observerID string) []recorded {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]recorded, len(g.events[observerID]))
	copy(out, g.events[observerID])
	return out
}

func (g *fakeGateway) eventNames(observerID string) []string {
	evts := g.eventsFor(observerID)
	names := make([]string, len(evts))
	for i, e := range evts {
		names[i] = e.event
	}
	return names
}

type fakeSource struct {
	name    string
	listFn  func(ctx context.Context, substance string) ([]models.ReportMeta, error)
	fetchFn func(ctx context.Context, meta models.ReportMeta) (*models.Report, error)

	mu      sync.Mutex
	fetched []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ListReports(ctx context.Context, substance string) ([]models.ReportMeta, error) {
	return f.listFn(ctx, substance)
}

func (f *fakeSource) FetchReport(ctx context.Context, meta models.ReportMeta) (*models.Report, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, meta.ID)
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(ctx, meta)
	}
	return reportFor(meta), nil
}

func (f *fakeSource) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetched))
	copy(out, f.fetched)
	return out
}

func reportFor(meta models.ReportMeta) *models.Report {
	return &models.Report{
		ID:           meta.ID,
		Source:       meta.Source,
		Title:        meta.Title,
		URL:          meta.URL,
		Language:     "en",
		BodyOriginal: "original body of " + meta.ID,
	}
}

func metaFor(source, id, title string) models.ReportMeta {
	return models.ReportMeta{
		ID:     id,
		Source: source,
		Title:  title,
		URL:    "https://example.org/" + id,
	}
}

func listOf(metas ...models.ReportMeta) func(context.Context, string) ([]models.ReportMeta, error) {
	return func(context.Context, string) ([]models.ReportMeta, error) {
		return metas, nil
	}
}

// stubTranslator marks bodies instead of translating them.
type stubTranslator struct{}

func (stubTranslator) Target() string { return "fr" }

func (stubTranslator) TranslateReport(_ context.Context, r *models.Report) error {
	if r.Language == "fr" {
		r.BodyTranslated = r.BodyOriginal
		return nil
	}
	r.BodyTranslated = "[fr]" + r.BodyOriginal
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.CacheConfig{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPipeline(t *testing.T, gw *fakeGateway, srcs ...sources.Source) (*Registry, *Pipeline, *store.Store) {
	t.Helper()
	reg := NewRegistry(gw)
	st := newTestStore(t)
	p := NewPipeline(reg, st, srcs, stubTranslator{}, config.ScrapeConfig{})
	return reg, p, st
}

func TestSubmitAtMostOneJob(t *testing.T) {
	gw := newFakeGateway()
	reg := NewRegistry(gw)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	startedCount := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if reg.Submit("lsd", "LSD", fmt.Sprintf("obs-%d", i)) {
				mu.Lock()
				startedCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if startedCount != 1 {
		t.Fatalf("started %d jobs under concurrent submit, want 1", startedCount)
	}

	// Every observer is subscribed: a broadcast reaches all of them.
	reg.Broadcast("lsd", models.EventScrapingStatus, nil)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("obs-%d", i)
		if len(gw.eventsFor(id)) != 1 {
			t.Errorf("observer %s got %d events, want 1", id, len(gw.eventsFor(id)))
		}
	}
}

func TestSubscribeUnsubscribeWindows(t *testing.T) {
	gw := newFakeGateway()
	reg := NewRegistry(gw)

	reg.Submit("lsd", "LSD", "first")
	reg.Broadcast("lsd", "e1", nil)

	reg.Subscribe("lsd", "late")
	reg.Broadcast("lsd", "e2", nil)

	reg.Unsubscribe("first")
	reg.Broadcast("lsd", "e3", nil)

	if got := gw.eventNames("first"); len(got) != 2 || got[0] != "e1" || got[1] != "e2" {
		t.Errorf("first saw %v, want [e1 e2]", got)
	}
	if got := gw.eventNames("late"); len(got) != 2 || got[0] != "e2" || got[1] != "e3" {
		t.Errorf("late saw %v, want [e2 e3]", got)
	}
}

func TestSubscribeAfterCompleteIsNoop(t *testing.T) {
	gw := newFakeGateway()
	reg := NewRegistry(gw)

	reg.Submit("lsd", "LSD", "obs")
	reg.Complete("lsd")

	reg.Subscribe("lsd", "late")
	reg.Broadcast("lsd", "e1", nil)

	if len(gw.eventsFor("late")) != 0 {
		t.Error("broadcast after complete delivered events")
	}
	if reg.Running("lsd") {
		t.Error("job still running after Complete")
	}
	if !reg.Submit("lsd", "LSD", "obs") {
		t.Error("Submit after Complete did not start fresh")
	}
}

func TestEndToEndSingleReport(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name:   "src",
		listFn: listOf(metaFor("src", "src_1", "Report 1")),
	}
	reg, pipe, st := newTestPipeline(t, gw, src)

	if !reg.Submit("lsd", "LSD", "obs") {
		t.Fatal("Submit did not start")
	}
	pipe.Run(context.Background(), "lsd", "LSD")

	want := []string{
		models.EventScrapingStatus,   // listing
		models.EventScrapingStart,    // total=1
		models.EventReportScraping,   // fetching
		models.EventReportTranslating,
		models.EventReportScraped,
		models.EventScrapingComplete,
	}
	got := gw.eventNames("obs")
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	evts := gw.eventsFor("obs")
	start := evts[1].payload.(models.StartEvent)
	if start.Total != 1 || start.AlreadyCached != 0 {
		t.Errorf("start = %+v, want total=1 alreadyCached=0", start)
	}
	complete := evts[5].payload.(models.CompleteEvent)
	if complete.TotalReports != 1 {
		t.Errorf("complete.TotalReports = %d, want 1", complete.TotalReports)
	}

	index := st.GetIndex("lsd")
	if index == nil || len(index.Reports) != 1 || index.Reports[0].ID != "src_1" {
		t.Fatalf("index = %+v, want one entry src_1", index)
	}

	if reg.Running("lsd") {
		t.Error("job not released after Run")
	}
}

func TestIdempotentReaggregation(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name:   "src",
		listFn: listOf(metaFor("src", "src_1", "One"), metaFor("src", "src_2", "Two")),
	}
	reg, pipe, st := newTestPipeline(t, gw, src)

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	firstTotal := lastComplete(t, gw, "obs").TotalReports

	reg.Submit("lsd", "LSD", "obs2")
	pipe.Run(context.Background(), "lsd", "LSD")

	secondTotal := lastComplete(t, gw, "obs2").TotalReports
	if firstTotal != 2 || secondTotal != 2 {
		t.Errorf("totals = %d then %d, want 2 and 2", firstTotal, secondTotal)
	}
	if len(st.GetIndex("lsd").Reports) != 2 {
		t.Errorf("index has %d entries after re-run, want 2", len(st.GetIndex("lsd").Reports))
	}

	// The second run fetched nothing and said so.
	if got := src.fetchedIDs(); len(got) != 2 {
		t.Errorf("fetched %v across both runs, want only the first run's 2", got)
	}
	foundCachedStatus := false
	for _, e := range gw.eventsFor("obs2") {
		if s, ok := e.payload.(models.StatusEvent); ok && s.Phase == models.PhaseCached {
			foundCachedStatus = true
		}
	}
	if !foundCachedStatus {
		t.Error("second run never reported phase=cached")
	}
}

func TestDedupAgainstCache(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name: "src",
		listFn: listOf(
			metaFor("src", "src_a", "A"),
			metaFor("src", "src_b", "B"),
			metaFor("src", "src_c", "C"),
		),
	}
	reg, pipe, st := newTestPipeline(t, gw, src)

	// Pre-cache A.
	if err := st.SaveReport("lsd", "LSD", reportFor(metaFor("src", "src_a", "A"))); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	var start models.StartEvent
	for _, e := range gw.eventsFor("obs") {
		if s, ok := e.payload.(models.StartEvent); ok {
			start = s
		}
	}
	if start.Total != 2 || start.AlreadyCached != 1 || start.TotalWithCached != 3 {
		t.Errorf("start = %+v, want total=2 alreadyCached=1 totalWithCached=3", start)
	}

	got := src.fetchedIDs()
	if len(got) != 2 || got[0] != "src_b" || got[1] != "src_c" {
		t.Errorf("fetched %v, want [src_b src_c]", got)
	}
}

func TestSourceIsolation(t *testing.T) {
	gw := newFakeGateway()
	broken := &fakeSource{
		name: "broken",
		listFn: func(context.Context, string) ([]models.ReportMeta, error) {
			return nil, errors.New("listing exploded")
		},
	}
	healthy := &fakeSource{
		name:   "healthy",
		listFn: listOf(metaFor("healthy", "healthy_1", "Works")),
	}
	reg, pipe, st := newTestPipeline(t, gw, broken, healthy)

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	sawSourceError := false
	for _, e := range gw.eventsFor("obs") {
		if s, ok := e.payload.(models.StatusEvent); ok && s.Phase == models.PhaseError && s.Source == "broken" {
			sawSourceError = true
		}
	}
	if !sawSourceError {
		t.Error("broken source's failure never surfaced as a status event")
	}

	if lastComplete(t, gw, "obs").TotalReports != 1 {
		t.Error("healthy source's report not persisted despite broken source")
	}
	if _, err := st.GetReport("lsd", "healthy_1"); err != nil {
		t.Errorf("GetReport(healthy_1): %v", err)
	}
}

// failingBackend always errors, forcing the translator's chunk fallback.
type failingBackend struct{}

func (failingBackend) Translate(context.Context, string, string, string) (string, error) {
	return "", errors.New("translation service down")
}

func TestTransformFailureFallsBackToOriginal(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name:   "src",
		listFn: listOf(metaFor("src", "src_1", "One")),
	}
	reg := NewRegistry(gw)
	st := newTestStore(t)
	translator := translate.NewWithBackend(config.TranslateConfig{
		Target:     "fr",
		ChunkSize:  4500,
		MaxRetries: 1,
	}, failingBackend{})
	pipe := NewPipeline(reg, st, []sources.Source{src}, translator, config.ScrapeConfig{})

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	got, err := st.GetReport("lsd", "src_1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.BodyTranslated == "" {
		t.Fatal("BodyTranslated empty after transform failure, want original body fallback")
	}
	if got.BodyTranslated != got.BodyOriginal {
		t.Errorf("BodyTranslated = %q, want the original body", got.BodyTranslated)
	}
	if len(st.GetIndex("lsd").Reports) != 1 {
		t.Error("report missing from index after transform failure")
	}
}

func TestFetchFailureSkipsItem(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name:   "src",
		listFn: listOf(metaFor("src", "src_1", "Bad"), metaFor("src", "src_2", "Good")),
		fetchFn: func(_ context.Context, meta models.ReportMeta) (*models.Report, error) {
			if meta.ID == "src_1" {
				return nil, errors.New("fetch failed")
			}
			return reportFor(meta), nil
		},
	}
	reg, pipe, st := newTestPipeline(t, gw, src)

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	index := st.GetIndex("lsd")
	if len(index.Reports) != 1 || index.Reports[0].ID != "src_2" {
		t.Fatalf("index = %+v, want only src_2", index.Reports)
	}
	if lastComplete(t, gw, "obs").TotalReports != 1 {
		t.Error("complete total wrong after a fetch failure")
	}
}

func TestCrossSourceOverlapFetchedOnce(t *testing.T) {
	gw := newFakeGateway()
	// Both sources list the same ID; the second source must see it as
	// cached once the first persists it.
	s1 := &fakeSource{name: "s1", listFn: listOf(metaFor("s1", "shared_1", "Dup"))}
	s2 := &fakeSource{name: "s2", listFn: listOf(metaFor("s2", "shared_1", "Dup"))}
	reg, pipe, st := newTestPipeline(t, gw, s1, s2)

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	if n := len(s1.fetchedIDs()) + len(s2.fetchedIDs()); n != 1 {
		t.Errorf("shared ID fetched %d times, want 1", n)
	}
	if len(st.GetIndex("lsd").Reports) != 1 {
		t.Error("shared ID duplicated in index")
	}
}

func TestNothingFoundAnywhere(t *testing.T) {
	gw := newFakeGateway()
	empty := &fakeSource{name: "src", listFn: listOf()}
	reg, pipe, _ := newTestPipeline(t, gw, empty)

	reg.Submit("junk", "zzz-junk", "obs")
	pipe.Run(context.Background(), "junk", "zzz-junk")

	names := gw.eventNames("obs")
	sawError := false
	for _, n := range names {
		if n == models.EventScrapingError {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("no scraping_error for a substance with no reports anywhere: %v", names)
	}
	if names[len(names)-1] != models.EventScrapingComplete {
		t.Errorf("job did not end with scraping_complete: %v", names)
	}
	if lastComplete(t, gw, "obs").TotalReports != 0 {
		t.Error("complete total nonzero for an empty result")
	}
}

func TestPanicReleasesJob(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{
		name: "src",
		listFn: func(context.Context, string) ([]models.ReportMeta, error) {
			panic("listing blew up")
		},
	}
	reg, pipe, _ := newTestPipeline(t, gw, src)

	reg.Submit("lsd", "LSD", "obs")
	pipe.Run(context.Background(), "lsd", "LSD")

	if reg.Running("lsd") {
		t.Fatal("job still registered after a panic")
	}

	sawError := false
	for _, n := range gw.eventNames("obs") {
		if n == models.EventScrapingError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("panic not reported to subscribers")
	}

	// The key is free again.
	if !reg.Submit("lsd", "LSD", "obs") {
		t.Error("Submit blocked after a panicked run")
	}
}

func TestServiceValidation(t *testing.T) {
	gw := newFakeGateway()
	reg := NewRegistry(gw)
	st := newTestStore(t)
	src := &fakeSource{name: "src", listFn: listOf()}
	pipe := NewPipeline(reg, st, []sources.Source{src}, stubTranslator{}, config.ScrapeConfig{})
	svc := NewService(context.Background(), reg, pipe, gw)

	svc.StartScraping("   ", "obs")
	evts := gw.eventsFor("obs")
	if len(evts) != 1 || evts[0].event != models.EventScrapingError {
		t.Fatalf("events = %v, want one scraping_error", evts)
	}
	if reg.Running("") {
		t.Error("registry touched for an invalid name")
	}
}

func TestServiceJoinRunningJob(t *testing.T) {
	gw := newFakeGateway()
	reg := NewRegistry(gw)
	st := newTestStore(t)

	release := make(chan struct{})
	src := &fakeSource{
		name: "src",
		listFn: func(ctx context.Context, _ string) ([]models.ReportMeta, error) {
			<-release
			return nil, nil
		},
	}
	pipe := NewPipeline(reg, st, []sources.Source{src}, stubTranslator{}, config.ScrapeConfig{})
	svc := NewService(context.Background(), reg, pipe, gw)

	svc.StartScraping("Kétamine", "first")
	waitFor(t, func() bool { return reg.Running("ketamine") })
	// Once the listing status lands, the pipeline is parked inside
	// ListReports and cannot race the second observer's join.
	waitFor(t, func() bool { return len(gw.eventsFor("first")) >= 1 })

	// Same substance, different spelling: joins, does not start a second job.
	svc.StartScraping("  KETAMINE ", "second")

	evts := gw.eventsFor("second")
	if len(evts) != 1 || evts[0].event != models.EventScrapingStatus {
		t.Fatalf("second observer events = %v, want one already-running status", evts)
	}
	if s := evts[0].payload.(models.StatusEvent); s.Phase != models.PhaseRunning {
		t.Errorf("phase = %q, want running", s.Phase)
	}

	// The joined observer receives subsequent broadcasts.
	close(release)
	waitFor(t, func() bool { return !reg.Running("ketamine") })
	sawComplete := false
	for _, n := range gw.eventNames("second") {
		if n == models.EventScrapingComplete {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("joined observer missed the complete event")
	}
}

func lastComplete(t *testing.T, gw *fakeGateway, observerID string) models.CompleteEvent {
	t.Helper()
	var out models.CompleteEvent
	found := false
	for _, e := range gw.eventsFor(observerID) {
		if c, ok := e.payload.(models.CompleteEvent); ok {
			out = c
			found = true
		}
	}
	if !found {
		t.Fatalf("observer %s never received scraping_complete: %v", observerID, gw.eventNames(observerID))
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
