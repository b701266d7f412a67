// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents decomposes to NFD, strips combining marks, and recomposes.
// "Kétamine" and "ketamine" must land on the same cache key; substance names
// arrive from a French-speaking frontend as often as not.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKey converts a display substance name into the canonical cache
// key used for job identity and storage location: accent-folded, lowercased,
// runs of non-alphanumerics collapsed to a single "-", trimmed.
//
// Two names normalizing to the same key are the same aggregation target.
func NormalizeKey(name string) string {
	folded, _, err := transform.String(foldAccents, name)
	if err != nil {
		// Transform failure leaves the input usable as-is; fall through
		// with the original so a weird name still yields a stable key.
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	return b.String()
}
