// Copyright Bio312 course staff, 2026. All rights reserved.

package fetch

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Bio312/labfiles/pkg/types"
)

// headerKeywords are first-column values that mark a line as a header
// row rather than data. Matched case-insensitively.
var headerKeywords = map[string]bool{
	"refseq":      true,
	"refseqid":    true,
	"reference":   true,
	"referenceid": true,
	"id":          true,
	"accession":   true,
	"protein":     true,
	"gene":        true,
}

// noValueSentinels are cross-reference field values that mean "no
// identifier available". Matched case-insensitively after trimming.
var noValueSentinels = map[string]bool{
	"MISSING": true,
	"NA":      true,
	"-":       true,
}

// ParseTable reads the two-column tab-separated input table. Trailing
// carriage returns are tolerated, blank lines and header rows are
// skipped. A row with no second column gets CrossRefID "MISSING" so the
// driver can log and skip it like an explicit sentinel.
func ParseTable(r io.Reader) ([]types.Record, error) {
	var records []types.Record

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		refID := strings.TrimSpace(fields[0])
		if refID == "" || headerKeywords[strings.ToLower(refID)] {
			continue
		}

		crossRef := "MISSING"
		if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
			crossRef = strings.TrimSpace(fields[1])
		}

		records = append(records, types.Record{
			ReferenceID: refID,
			CrossRefID:  crossRef,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input table: %w", err)
	}

	return records, nil
}

// IsMissing reports whether a cross-reference field is empty or a
// no-value sentinel.
func IsMissing(crossRef string) bool {
	v := strings.ToUpper(strings.TrimSpace(crossRef))
	return v == "" || noValueSentinels[v]
}
