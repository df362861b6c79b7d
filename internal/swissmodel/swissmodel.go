// Copyright Bio312 course staff, 2026. All rights reserved.

// Package swissmodel scrapes the SWISS-MODEL repository for homology
// models when AlphaFold has nothing. The repository page carries no
// structured contract, so model links are extracted from the raw page by
// two independent patterns and a bounded number of them is downloaded.
package swissmodel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bio312/labfiles/internal/httputil"
	"github.com/Bio312/labfiles/pkg/types"
)

// Base URLs for the SWISS-MODEL repository. Declared as vars so tests can
// substitute httptest servers.
var (
	// RepositoryBase serves the per-accession repository page.
	RepositoryBase = "https://swissmodel.expasy.org/repository/uniprot/"

	// CoordinateBase is the canonical download URL coordinate-id hashes
	// are reconstructed into.
	CoordinateBase = "https://swissmodel.expasy.org/repository/coordinates/"
)

// DefaultMaxModels caps downloads per record when the config leaves it zero.
const DefaultMaxModels = 1

// Client fetches homology models into an output directory.
type Client struct {
	http   *httputil.Client
	outDir string
	max    int
	log    *zap.Logger
}

// NewClient returns a Client that saves at most maxModels files per record.
func NewClient(http *httputil.Client, outDir string, maxModels int, log *zap.Logger) *Client {
	if maxModels <= 0 {
		maxModels = DefaultMaxModels
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: http, outDir: outDir, max: maxModels, log: log}
}

// modelLink is one downloadable model extracted from the repository page.
type modelLink struct {
	url     string
	coordID string
}

// Fetch scrapes the repository page for the uppercased token, downloads
// up to the configured maximum of the extracted model links, and returns
// an artifact when at least one file was saved. Files are named
// <referenceID>__SWM-<uniprotID>-<coordinateID>.pdb.
func (c *Client) Fetch(ctx context.Context, referenceID, token string) (*types.Artifact, error) {
	uniprotID := strings.ToUpper(strings.TrimSpace(token))
	if uniprotID == "" {
		return nil, fmt.Errorf("swiss-model: empty token: %w", httputil.ErrNotFound)
	}

	body, err := c.http.GetBody(ctx, RepositoryBase+uniprotID)
	if err != nil {
		return nil, fmt.Errorf("swiss-model page: %w", err)
	}

	links := extractModelLinks(string(body))
	if len(links) == 0 {
		return nil, fmt.Errorf("swiss-model: no model links for %q: %w", uniprotID, httputil.ErrMalformed)
	}

	var saved []string
	for _, link := range links {
		if len(saved) >= c.max {
			break
		}
		name := fmt.Sprintf("%s__SWM-%s-%s.pdb", referenceID, uniprotID, link.coordID)
		destPath := filepath.Join(c.outDir, name)
		if err := c.http.Download(ctx, link.url, destPath); err != nil {
			c.log.Debug("swiss-model download failed",
				zap.String("record", referenceID),
				zap.String("stage", "swiss-model"),
				zap.String("url", link.url),
				zap.Error(err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		saved = append(saved, destPath)
	}

	if len(saved) == 0 {
		return nil, fmt.Errorf("swiss-model: all downloads failed for %q: %w", uniprotID, httputil.ErrNotFound)
	}

	c.log.Info("swiss-model resolved",
		zap.String("record", referenceID),
		zap.String("stage", "swiss-model"),
		zap.String("mechanism", string(types.MechanismSwissModel)),
		zap.String("outcome", "resolved"),
		zap.Int("files", len(saved)))

	return &types.Artifact{
		SourceID:      uniprotID,
		Mechanism:     types.MechanismSwissModel,
		StructureFile: saved[0],
		AuxFiles:      saved[1:],
		FetchedAt:     time.Now().UTC(),
	}, nil
}
