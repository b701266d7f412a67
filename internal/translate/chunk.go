// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package translate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// "T+1:30" trip-clock notation, with optional seconds.
	timestampPattern = regexp.MustCompile(`T\+\d+:\d+(?::\d+)?`)
	// Clock times like "11:45 pm".
	clockPattern = regexp.MustCompile(`\d{1,2}:\d{2}\s*(?:am|pm|AM|PM)?`)
)

// splitChunks splits text into pieces no longer than maxSize, preferring
// paragraph breaks, then line breaks. A single line longer than maxSize is
// emitted as its own oversized chunk; the backend has to cope.
func splitChunks(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	current := ""
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
		current = ""
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		switch {
		case len(paragraph) > maxSize:
			flush()
			for _, line := range strings.Split(paragraph, "\n") {
				if len(current)+len(line)+1 > maxSize {
					flush()
					current = line
				} else if current == "" {
					current = line
				} else {
					current += "\n" + line
				}
			}
		case len(current)+len(paragraph)+2 > maxSize:
			flush()
			current = paragraph
		case current == "":
			current = paragraph
		default:
			current += "\n\n" + paragraph
		}
	}
	flush()

	return chunks
}

// protectTimestamps replaces trip-clock and clock-time tokens with opaque
// placeholders the translation backend will pass through untouched.
// restoreTimestamps undoes the substitution on the translated text.
func protectTimestamps(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	counter := 0

	replace := func(match string) string {
		placeholder := fmt.Sprintf("__TS%d__", counter)
		placeholders[placeholder] = match
		counter++
		return placeholder
	}

	text = timestampPattern.ReplaceAllStringFunc(text, replace)
	text = clockPattern.ReplaceAllStringFunc(text, replace)
	return text, placeholders
}

func restoreTimestamps(text string, placeholders map[string]string) string {
	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}
	return text
}
