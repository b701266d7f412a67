// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package models

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestIndexEntryProjection(t *testing.T) {
	report := &Report{
		ID:             "erowid_1",
		Source:         "erowid",
		Title:          "A Quiet Evening",
		Author:         "Anonymous",
		Date:           "Jun 12, 2019",
		URL:            "https://www.erowid.org/experiences/exp.php?ID=1",
		Language:       "en",
		Substances:     []DoseEntry{{Name: "LSD", Dose: "100 ug", Route: "oral"}},
		IsCombo:        false,
		BodyOriginal:   "the original text",
		BodyTranslated: "le texte traduit",
	}

	entry := report.IndexEntry()
	if entry.ID != report.ID || entry.Title != report.Title {
		t.Fatalf("entry = %+v, metadata not carried over", entry)
	}
	if len(entry.Substances) != 1 || entry.Substances[0].Name != "LSD" {
		t.Fatalf("substances = %+v", entry.Substances)
	}

	// The projection must not leak body texts onto the wire.
	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "original text") || strings.Contains(string(raw), "body_original") {
		t.Errorf("index entry JSON carries report body: %s", raw)
	}
}
