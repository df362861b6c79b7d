// Copyright Bio312 course staff, 2026. All rights reserved.

// Package alphafold resolves candidate identifiers against the AlphaFold
// database. Three mechanisms are tried in strict priority order: a static
// file probe (no parsing, fastest confirmation), the prediction API
// (structured JSON), and an entry-page scrape (regex over raw HTML, the
// only contract the entry pages offer). The first success wins.
package alphafold

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/Bio312/labfiles/internal/httputil"
	"github.com/Bio312/labfiles/pkg/types"
)

// Base URLs for the AlphaFold hosts. Declared as vars so tests can
// substitute httptest servers.
var (
	FileBase   = "https://alphafold.ebi.ac.uk/files/"
	APIBase    = "https://alphafold.ebi.ac.uk/api/prediction/"
	EntryBase  = "https://alphafold.ebi.ac.uk/entry/"
	SearchBase = "https://alphafold.ebi.ac.uk/api/search"
)

// ModelVersions lists the model-format versions the static probe tries,
// newest first.
var ModelVersions = []string{"v6", "v4"}

// maxFragments is the highest multimer fragment index probed per version.
const maxFragments = 5

// errDownloadFailed marks a transfer failure after a mechanism had
// already located a structure file. The candidate is abandoned instead
// of falling through to the next mechanism.
var errDownloadFailed = errors.New("download failed")

// modelFilePattern extracts the first structure-file URL embedded in an
// entry page. Expected shape:
// https://<host>/files/AF-<accession>-F<n>-model_v<n>.pdb (or .cif).
var modelFilePattern = regexp.MustCompile(`https?://[^\s"'<>]+/AF-[A-Z0-9]+-F\d+-model_v\d+\.(?:pdb|cif)`)

// paeFilePattern extracts a confidence-data URL from an entry page.
// Expected shape:
// https://<host>/files/AF-<accession>-F<n>-predicted_aligned_error_v<n>.json.
var paeFilePattern = regexp.MustCompile(`https?://[^\s"'<>]+/AF-[A-Z0-9]+-F\d+-predicted_aligned_error_v\d+\.json`)

// Resolver fetches AlphaFold structures into an output directory.
type Resolver struct {
	client *httputil.Client
	outDir string
	log    *zap.Logger
}

// NewResolver returns a Resolver that downloads into outDir.
func NewResolver(client *httputil.Client, outDir string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{client: client, outDir: outDir, log: log}
}

// Resolve tries the three mechanisms in order for one candidate and
// returns the artifact of the first that succeeds. A download failure
// after a positive probe/API/scrape fails the candidate outright; there
// is no second chance for the same candidate.
func (r *Resolver) Resolve(ctx context.Context, referenceID, candidate string) (*types.Artifact, error) {
	mechanisms := []struct {
		name types.Mechanism
		fn   func(context.Context, string, string) (*types.Artifact, error)
	}{
		{types.MechanismFiles, r.tryFiles},
		{types.MechanismAPI, r.tryAPI},
		{types.MechanismHTML, r.tryEntryPage},
	}

	r.log.Info("alphafold attempt",
		zap.String("record", referenceID),
		zap.String("stage", "alphafold"),
		zap.String("candidate", candidate))

	for _, m := range mechanisms {
		art, err := m.fn(ctx, referenceID, candidate)
		if err != nil {
			r.log.Debug("mechanism failed",
				zap.String("record", referenceID),
				zap.String("stage", "alphafold"),
				zap.String("candidate", candidate),
				zap.String("mechanism", string(m.name)),
				zap.String("outcome", "failed"),
				zap.Error(err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, errDownloadFailed) {
				return nil, err
			}
			continue
		}
		r.log.Info("mechanism succeeded",
			zap.String("record", referenceID),
			zap.String("stage", "alphafold"),
			zap.String("candidate", candidate),
			zap.String("mechanism", string(m.name)),
			zap.String("outcome", "resolved"))
		return art, nil
	}

	return nil, fmt.Errorf("no AlphaFold model for %q: %w", candidate, httputil.ErrNotFound)
}

// tryFiles probes predictable static download URLs, newest model version
// first, fragment indices 1 through maxFragments. The first URL whose
// existence check passes is downloaded.
func (r *Resolver) tryFiles(ctx context.Context, referenceID, candidate string) (*types.Artifact, error) {
	for _, version := range ModelVersions {
		for frag := 1; frag <= maxFragments; frag++ {
			structURL := fmt.Sprintf("%sAF-%s-F%d-model_%s.pdb", FileBase, candidate, frag, version)
			ok, err := r.client.Exists(ctx, structURL)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			paeURL := fmt.Sprintf("%sAF-%s-F%d-predicted_aligned_error_%s.json", FileBase, candidate, frag, version)
			return r.download(ctx, referenceID, candidate, types.MechanismFiles, structURL, paeURL)
		}
	}
	return nil, fmt.Errorf("static probe: no file for %q: %w", candidate, httputil.ErrNotFound)
}

// predictionEntry captures the fields we need from the prediction API.
type predictionEntry struct {
	PDBURL    string `json:"pdbUrl"`
	CIFURL    string `json:"cifUrl"`
	PAEDocURL string `json:"paeDocUrl"`
}

// tryAPI queries the per-identifier prediction endpoint and downloads
// the structure URL it reports.
func (r *Resolver) tryAPI(ctx context.Context, referenceID, candidate string) (*types.Artifact, error) {
	var entries []predictionEntry
	if err := r.client.GetJSON(ctx, APIBase+candidate, &entries); err != nil {
		return nil, fmt.Errorf("prediction API: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("prediction API: empty response for %q: %w", candidate, httputil.ErrMalformed)
	}

	entry := entries[0]
	structURL := entry.PDBURL
	if structURL == "" {
		structURL = entry.CIFURL
	}
	if structURL == "" {
		return nil, fmt.Errorf("prediction API: no structure URL for %q: %w", candidate, httputil.ErrMalformed)
	}

	return r.download(ctx, referenceID, candidate, types.MechanismAPI, structURL, entry.PAEDocURL)
}

// tryEntryPage scrapes the human-readable entry page for the first
// embedded structure-file URL.
func (r *Resolver) tryEntryPage(ctx context.Context, referenceID, candidate string) (*types.Artifact, error) {
	body, err := r.client.GetBody(ctx, EntryBase+candidate)
	if err != nil {
		return nil, fmt.Errorf("entry page: %w", err)
	}

	structURL := modelFilePattern.FindString(string(body))
	if structURL == "" {
		return nil, fmt.Errorf("entry page: no model URL in page for %q: %w", candidate, httputil.ErrMalformed)
	}
	paeURL := paeFilePattern.FindString(string(body))

	return r.download(ctx, referenceID, candidate, types.MechanismHTML, structURL, paeURL)
}

// download fetches the structure file and, when a confidence URL is known
// and its existence check passes, the confidence file too. Output names
// are <referenceID>__<basename-of-source-url>.
func (r *Resolver) download(ctx context.Context, referenceID, candidate string, mech types.Mechanism, structURL, paeURL string) (*types.Artifact, error) {
	destPath := filepath.Join(r.outDir, referenceID+"__"+remoteBasename(structURL))
	if err := r.client.Download(ctx, structURL, destPath); err != nil {
		return nil, fmt.Errorf("downloading %s: %v: %w", structURL, err, errDownloadFailed)
	}

	art := &types.Artifact{
		SourceID:      candidate,
		Mechanism:     mech,
		StructureFile: destPath,
		FetchedAt:     time.Now().UTC(),
	}

	if paeURL != "" {
		ok, err := r.client.Exists(ctx, paeURL)
		if err == nil && ok {
			paePath := filepath.Join(r.outDir, referenceID+"__"+remoteBasename(paeURL))
			if err := r.client.Download(ctx, paeURL, paePath); err == nil {
				art.AuxFiles = append(art.AuxFiles, paePath)
			} else {
				r.log.Debug("confidence download failed",
					zap.String("record", referenceID),
					zap.String("candidate", candidate),
					zap.Error(err))
			}
		}
	}

	return art, nil
}

// remoteBasename returns the final path element of a URL, query stripped.
func remoteBasename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
