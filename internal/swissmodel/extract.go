// Copyright Bio312 course staff, 2026. All rights reserved.

package swissmodel

import (
	"regexp"
	"strings"
)

// directLinkPattern matches absolute model-file links embedded in the
// repository page. Expected shape:
// https://<host>/repository/<anything>.pdb (query string allowed after).
var directLinkPattern = regexp.MustCompile(`https?://[^\s"'<>]+/repository/[^\s"'<>?]+\.pdb`)

// coordinateIDPattern matches coordinate content-identifier hashes in the
// JSON blobs the page embeds. Expected shape:
// "coordinate_id": "<24-40 hex chars>".
var coordinateIDPattern = regexp.MustCompile(`"coordinate_id"\s*:\s*"([0-9a-f]{24,40})"`)

// extractModelLinks pulls model download links out of a raw repository
// page using both patterns: direct .pdb links first, then coordinate ids
// reconstructed into CoordinateBase URLs. The combined list is
// deduplicated by URL preserving first-seen order. An empty slice means
// no match.
func extractModelLinks(page string) []modelLink {
	var links []modelLink
	seen := map[string]bool{}

	for _, u := range directLinkPattern.FindAllString(page, -1) {
		if seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, modelLink{url: u, coordID: basenameStem(u)})
	}

	for _, m := range coordinateIDPattern.FindAllStringSubmatch(page, -1) {
		id := m[1]
		u := CoordinateBase + id + ".pdb"
		if seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, modelLink{url: u, coordID: id})
	}

	return links
}

// basenameStem returns the final path element of a URL without the .pdb
// extension, for use as a coordinate id in output filenames.
func basenameStem(u string) string {
	stem := u
	if i := strings.LastIndexByte(stem, '/'); i >= 0 {
		stem = stem[i+1:]
	}
	return strings.TrimSuffix(stem, ".pdb")
}
