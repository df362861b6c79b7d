// Copyright Bio312 course staff, 2026. All rights reserved.

// Package uniprot resolves cross-reference tokens to primary UniProt
// accessions through the UniProtKB REST API.
package uniprot

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/Bio312/labfiles/internal/httputil"
)

// Base URLs for the UniProtKB REST API. Declared as vars so tests can
// substitute httptest servers.
var (
	EntryBase  = "https://rest.uniprot.org/uniprotkb/"
	SearchBase = "https://rest.uniprot.org/uniprotkb/search"
)

// Client resolves accessions against UniProtKB.
type Client struct {
	http *httputil.Client
	log  *zap.Logger
}

// NewClient returns a Client backed by the shared HTTP adapter.
func NewClient(http *httputil.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: http, log: log}
}

type entryResponse struct {
	PrimaryAccession string `json:"primaryAccession"`
}

type searchResponse struct {
	Results []entryResponse `json:"results"`
}

// PrimaryAccession resolves token to its primary UniProt accession. It
// queries the entry-by-accession endpoint first and falls back to the
// search endpoint (accession or entry-name query, first result) when the
// direct lookup finds nothing.
func (c *Client) PrimaryAccession(ctx context.Context, token string) (string, error) {
	var entry entryResponse
	err := c.http.GetJSON(ctx, EntryBase+url.PathEscape(token)+".json", &entry)
	if err == nil && entry.PrimaryAccession != "" {
		c.log.Info("uniprot mapping",
			zap.String("stage", "xref"),
			zap.String("candidate", token),
			zap.String("mapped", entry.PrimaryAccession))
		return entry.PrimaryAccession, nil
	}
	if err != nil && !errors.Is(err, httputil.ErrNotFound) && !errors.Is(err, httputil.ErrMalformed) {
		return "", err
	}

	return c.searchAccession(ctx, token)
}

// searchAccession queries the UniProtKB search endpoint and takes the
// first result's primary accession.
func (c *Client) searchAccession(ctx context.Context, token string) (string, error) {
	params := url.Values{
		"query":  {fmt.Sprintf("accession_id:%s OR id:%s", token, token)},
		"fields": {"accession"},
		"size":   {"1"},
		"format": {"json"},
	}

	var sr searchResponse
	if err := c.http.GetJSON(ctx, SearchBase+"?"+params.Encode(), &sr); err != nil {
		return "", fmt.Errorf("uniprot search: %w", err)
	}
	if len(sr.Results) == 0 || sr.Results[0].PrimaryAccession == "" {
		return "", fmt.Errorf("uniprot search: no accession for %q: %w", token, httputil.ErrNotFound)
	}

	mapped := sr.Results[0].PrimaryAccession
	c.log.Info("uniprot mapping",
		zap.String("stage", "xref"),
		zap.String("candidate", token),
		zap.String("mapped", mapped))
	return mapped, nil
}
