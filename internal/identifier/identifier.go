// Copyright Bio312 course staff, 2026. All rights reserved.

// Package identifier derives candidate lookup keys from raw
// cross-reference tokens. Pure string manipulation, no network access.
package identifier

import (
	"regexp"
	"strings"
)

// isoformSuffix matches a trailing "-<digits>" splice-variant marker,
// e.g. the "-2" in "Q8WZ42-2".
var isoformSuffix = regexp.MustCompile(`-\d+$`)

// Candidates returns the ordered, deduplicated lookup keys for a raw
// token: the uppercased token first and, when it carries an isoform
// suffix, the stripped base second. Callers must keep this order: an
// isoform-specific model may exist when the generic entry does not.
// An empty or all-whitespace token yields nil.
func Candidates(raw string) []string {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return nil
	}

	out := []string{token}
	if base := Base(token); base != token && base != "" {
		out = append(out, base)
	}
	return out
}

// Base returns token with any isoform suffix removed.
func Base(token string) string {
	return isoformSuffix.ReplaceAllString(token, "")
}
