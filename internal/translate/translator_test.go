// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/models"
)

func testTranslateConfig() config.TranslateConfig {
	return config.TranslateConfig{
		Target:     "fr",
		ChunkSize:  4500,
		MaxRetries: 3,
	}
}

// fakeBackend prefixes chunks so tests can see what was sent, and can fail
// the first N calls.
type fakeBackend struct {
	calls     int
	failFirst int
	failText  string
}

func (f *fakeBackend) Translate(_ context.Context, text, source, target string) (string, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return "", errors.New("backend down")
	}
	if f.failText != "" && strings.Contains(text, f.failText) {
		return "", errors.New("backend rejected chunk")
	}
	return "[" + target + "]" + text, nil
}

func TestSplitChunksShortText(t *testing.T) {
	chunks := splitChunks("short text", 4500)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("chunks = %q", chunks)
	}
}

func TestSplitChunksParagraphBoundaries(t *testing.T) {
	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	p3 := strings.Repeat("c", 40)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := splitChunks(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2: %q", len(chunks), chunks)
	}
	if chunks[0] != p1+"\n\n"+p2 {
		t.Errorf("chunks[0] = %q", chunks[0])
	}
	if chunks[1] != p3 {
		t.Errorf("chunks[1] = %q", chunks[1])
	}

	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds max size: %d", len(c))
		}
	}
}

func TestSplitChunksLongParagraph(t *testing.T) {
	// One paragraph over the limit gets split on line boundaries.
	lines := []string{
		strings.Repeat("x", 60),
		strings.Repeat("y", 60),
		strings.Repeat("z", 60),
	}
	text := strings.Join(lines, "\n")

	chunks := splitChunks(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3: %q", len(chunks), chunks)
	}
	for i, c := range chunks {
		if c != lines[i] {
			t.Errorf("chunks[%d] = %q, want %q", i, c, lines[i])
		}
	}
}

func TestProtectRestoreTimestamps(t *testing.T) {
	text := "T+0:00 dropped. T+1:30:15 peak. Went to bed at 11:45 pm."

	protected, placeholders := protectTimestamps(text)
	if strings.Contains(protected, "T+0:00") || strings.Contains(protected, "11:45 pm") {
		t.Fatalf("timestamps not protected: %q", protected)
	}
	if len(placeholders) != 3 {
		t.Fatalf("len(placeholders) = %d, want 3", len(placeholders))
	}

	restored := restoreTimestamps(protected, placeholders)
	if restored != text {
		t.Fatalf("restored = %q, want %q", restored, text)
	}
}

func TestTranslateReportEnglish(t *testing.T) {
	backend := &fakeBackend{}
	tr := NewWithBackend(testTranslateConfig(), backend)

	report := &models.Report{
		ID:           "erowid_1",
		Language:     "en",
		BodyOriginal: "T+0:00 dropped one tab.",
	}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if !strings.HasPrefix(report.BodyTranslated, "[fr]") {
		t.Errorf("BodyTranslated = %q, want backend output", report.BodyTranslated)
	}
	if !strings.Contains(report.BodyTranslated, "T+0:00") {
		t.Errorf("timestamp not restored: %q", report.BodyTranslated)
	}
	if strings.Contains(report.BodyTranslated, "__TS") {
		t.Errorf("placeholder leaked: %q", report.BodyTranslated)
	}
}

func TestTranslateReportAlreadyTargetLanguage(t *testing.T) {
	backend := &fakeBackend{}
	tr := NewWithBackend(testTranslateConfig(), backend)

	report := &models.Report{Language: "fr", BodyOriginal: "déjà en français"}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if report.BodyTranslated != report.BodyOriginal {
		t.Errorf("BodyTranslated = %q, want verbatim original", report.BodyTranslated)
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times for a target-language report", backend.calls)
	}
}

func TestTranslateReportEmptyBody(t *testing.T) {
	tr := NewWithBackend(testTranslateConfig(), &fakeBackend{})
	report := &models.Report{Language: "en", BodyOriginal: "   "}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if report.BodyTranslated != "" {
		t.Errorf("BodyTranslated = %q, want empty", report.BodyTranslated)
	}
}

func TestTranslateRetriesThenSucceeds(t *testing.T) {
	backend := &fakeBackend{failFirst: 2}
	tr := NewWithBackend(testTranslateConfig(), backend)

	report := &models.Report{Language: "en", BodyOriginal: "hello"}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend.calls = %d, want 3", backend.calls)
	}
	if report.BodyTranslated != "[fr]hello" {
		t.Errorf("BodyTranslated = %q", report.BodyTranslated)
	}
}

func TestTranslateFailedChunkKeepsOriginal(t *testing.T) {
	backend := &fakeBackend{failFirst: 1000}
	tr := NewWithBackend(testTranslateConfig(), backend)

	report := &models.Report{Language: "en", BodyOriginal: "untranslatable body"}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if report.BodyTranslated != "untranslatable body" {
		t.Errorf("BodyTranslated = %q, want original as fallback", report.BodyTranslated)
	}
}

func TestTranslateMixedChunkOutcomes(t *testing.T) {
	p1 := strings.Repeat("good ", 15)
	p2 := strings.Repeat("BAD ", 15)
	cfg := testTranslateConfig()
	cfg.ChunkSize = 80

	backend := &fakeBackend{failText: "BAD"}
	tr := NewWithBackend(cfg, backend)

	report := &models.Report{Language: "en", BodyOriginal: p1 + "\n\n" + p2}
	if err := tr.TranslateReport(context.Background(), report); err != nil {
		t.Fatalf("TranslateReport: %v", err)
	}
	if !strings.Contains(report.BodyTranslated, "[fr]good") {
		t.Errorf("good chunk not translated: %q", report.BodyTranslated)
	}
	if !strings.Contains(report.BodyTranslated, "BAD") || strings.Contains(report.BodyTranslated, "[fr]BAD") {
		t.Errorf("failed chunk not kept verbatim: %q", report.BodyTranslated)
	}
}

func TestTranslateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &fakeBackend{failFirst: 1000}
	tr := NewWithBackend(testTranslateConfig(), backend)

	report := &models.Report{Language: "en", BodyOriginal: "hello"}
	if err := tr.TranslateReport(ctx, report); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseGtxResponse(t *testing.T) {
	body := []byte(`[[["Bonjour le monde. ","Hello world. ",null,null,10],["Deuxième phrase.","Second sentence.",null,null,10]],null,"en"]`)
	got, err := parseGtxResponse(body)
	if err != nil {
		t.Fatalf("parseGtxResponse: %v", err)
	}
	want := "Bonjour le monde. Deuxième phrase."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := parseGtxResponse([]byte(`[]`)); err == nil {
		t.Error("empty response accepted")
	}
	if _, err := parseGtxResponse([]byte(`not json`)); err == nil {
		t.Error("garbage accepted")
	}
}
