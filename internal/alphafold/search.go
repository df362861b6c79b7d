// Copyright Bio312 course staff, 2026. All rights reserved.

package alphafold

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/Bio312/labfiles/internal/httputil"
)

// searchResponse captures the fields we need from the full-text search API.
type searchResponse struct {
	Docs []searchDoc `json:"docs"`
}

type searchDoc struct {
	UniprotAccession string `json:"uniprotAccession"`
}

// SearchMap queries the full-text search endpoint with the candidate as
// the query string and returns the first canonical accession AlphaFold
// indexes it under. Recovers cases where the input token is a valid
// accession but not the exact string AlphaFold knows.
func (r *Resolver) SearchMap(ctx context.Context, candidate string) (string, error) {
	params := url.Values{
		"q":    {candidate},
		"type": {"main"},
		"rows": {"1"},
	}

	var sr searchResponse
	if err := r.client.GetJSON(ctx, SearchBase+"?"+params.Encode(), &sr); err != nil {
		return "", fmt.Errorf("search API: %w", err)
	}
	if len(sr.Docs) == 0 || sr.Docs[0].UniprotAccession == "" {
		return "", fmt.Errorf("search API: no hit for %q: %w", candidate, httputil.ErrNotFound)
	}

	mapped := sr.Docs[0].UniprotAccession
	r.log.Info("search mapping",
		zap.String("stage", "xref"),
		zap.String("candidate", candidate),
		zap.String("mapped", mapped))
	return mapped, nil
}
