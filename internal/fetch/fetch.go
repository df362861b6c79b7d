// Copyright Bio312 course staff, 2026. All rights reserved.

// Package fetch drives batch resolution of structure predictions. Rows
// are processed strictly one at a time; within a row the tiers run in a
// fixed order — AlphaFold on the raw candidates, cross-reference
// remapping back into AlphaFold, then the SWISS-MODEL fallback — and the
// first success ends the row. No row failure aborts the batch.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/Bio312/labfiles/internal/alphafold"
	"github.com/Bio312/labfiles/internal/httputil"
	"github.com/Bio312/labfiles/internal/identifier"
	"github.com/Bio312/labfiles/internal/ledger"
	"github.com/Bio312/labfiles/internal/swissmodel"
	"github.com/Bio312/labfiles/internal/uniprot"
	"github.com/Bio312/labfiles/pkg/types"
)

const manifestDir = "manifest"

// Runner wires the resolution tiers together for one batch run.
type Runner struct {
	AlphaFold  *alphafold.Resolver
	UniProt    *uniprot.Client
	SwissModel *swissmodel.Client

	// Ledger, when non-nil, records every per-record outcome.
	Ledger *ledger.Store

	outDir string
	log    *zap.Logger
}

// NewRunner builds a Runner over one shared HTTP client.
func NewRunner(client *httputil.Client, cfg types.FetchConfig, log *zap.Logger, led *ledger.Store) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		AlphaFold:  alphafold.NewResolver(client, cfg.OutDir, log),
		UniProt:    uniprot.NewClient(client, log),
		SwissModel: swissmodel.NewClient(client, cfg.OutDir, cfg.SWMMax, log),
		Ledger:     led,
		outDir:     cfg.OutDir,
		log:        log,
	}
}

// BatchResult summarizes one run.
type BatchResult struct {
	Resolved int
	Skipped  int
	Failed   int
	Outcomes []types.Outcome
}

// Total returns the number of records processed.
func (r BatchResult) Total() int {
	return r.Resolved + r.Skipped + r.Failed
}

// HasFailures reports whether any record exhausted every tier.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Run processes records in order, continuing past per-record failures.
func (rn *Runner) Run(ctx context.Context, records []types.Record) (BatchResult, error) {
	var runID int64
	if rn.Ledger != nil {
		id, err := rn.Ledger.BeginRun()
		if err != nil {
			return BatchResult{}, fmt.Errorf("starting ledger run: %w", err)
		}
		runID = id
	}

	var result BatchResult
	for _, rec := range records {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome := rn.resolveRecord(ctx, rec)
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.Status {
		case types.StatusResolved:
			result.Resolved++
			if err := rn.writeManifest(outcome); err != nil {
				rn.log.Warn("manifest write failed",
					zap.String("record", rec.ReferenceID),
					zap.Error(err))
			}
		case types.StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
		}

		if rn.Ledger != nil {
			if err := rn.Ledger.RecordOutcome(runID, outcome); err != nil {
				rn.log.Warn("ledger write failed",
					zap.String("record", rec.ReferenceID),
					zap.Error(err))
			}
		}
	}

	return result, nil
}

// resolveRecord runs the full resolution chain for one row and returns
// its terminal outcome.
func (rn *Runner) resolveRecord(ctx context.Context, rec types.Record) types.Outcome {
	if IsMissing(rec.CrossRefID) {
		rn.log.Info("record skipped",
			zap.String("record", rec.ReferenceID),
			zap.String("stage", "input"),
			zap.String("outcome", "skipped"),
			zap.String("cross_ref", rec.CrossRefID))
		return types.Outcome{Record: rec, Status: types.StatusSkipped, Reason: types.ReasonNoID}
	}

	// Candidates are deduplicated per record: one tried here may
	// legitimately be retried for a later record.
	seen := map[string]bool{}
	direct := identifier.Candidates(rec.CrossRefID)

	if art := rn.tryCandidates(ctx, rec, direct, seen); art != nil {
		return rn.resolved(rec, art)
	}

	// Tier two: remap the failed candidates to alternates and re-enter
	// the AlphaFold chain, each new candidate exactly once.
	if art := rn.tryCandidates(ctx, rec, rn.crossReference(ctx, rec, direct), seen); art != nil {
		return rn.resolved(rec, art)
	}

	// Tier three: SWISS-MODEL homology models.
	art, err := rn.SwissModel.Fetch(ctx, rec.ReferenceID, rec.CrossRefID)
	if err == nil {
		return rn.resolved(rec, art)
	}

	rn.log.Info("record exhausted",
		zap.String("record", rec.ReferenceID),
		zap.String("stage", "final"),
		zap.String("outcome", "failed"),
		zap.Error(err))
	return types.Outcome{Record: rec, Status: types.StatusFailed, Reason: types.ReasonExhausted}
}

// tryCandidates runs the AlphaFold resolver over candidates in order,
// skipping any already tried for this record, and returns the first
// artifact obtained.
func (rn *Runner) tryCandidates(ctx context.Context, rec types.Record, candidates []string, seen map[string]bool) *types.Artifact {
	for _, cand := range candidates {
		if seen[cand] {
			continue
		}
		seen[cand] = true

		art, err := rn.AlphaFold.Resolve(ctx, rec.ReferenceID, cand)
		if err == nil {
			return art
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// crossReference maps failed candidates to alternates via the AlphaFold
// search endpoint, then via UniProt accession resolution. Every mapped
// accession contributes itself plus its isoform-stripped base.
func (rn *Runner) crossReference(ctx context.Context, rec types.Record, direct []string) []string {
	var mapped []string

	for _, cand := range direct {
		if acc, err := rn.AlphaFold.SearchMap(ctx, cand); err == nil {
			mapped = append(mapped, identifier.Candidates(acc)...)
		}
	}
	for _, cand := range direct {
		if acc, err := rn.UniProt.PrimaryAccession(ctx, cand); err == nil {
			mapped = append(mapped, identifier.Candidates(acc)...)
		}
	}

	if len(mapped) > 0 {
		rn.log.Info("cross-reference candidates",
			zap.String("record", rec.ReferenceID),
			zap.String("stage", "xref"),
			zap.Strings("candidates", mapped))
	}
	return mapped
}

// resolved logs and packages a successful outcome.
func (rn *Runner) resolved(rec types.Record, art *types.Artifact) types.Outcome {
	rn.log.Info("record resolved",
		zap.String("record", rec.ReferenceID),
		zap.String("stage", "final"),
		zap.String("mechanism", string(art.Mechanism)),
		zap.String("outcome", "resolved"),
		zap.String("source", art.SourceID))
	return types.Outcome{Record: rec, Status: types.StatusResolved, Artifact: art}
}

// writeManifest records a successful outcome as a YAML sidecar under
// <outDir>/manifest/<referenceID>.yaml.
func (rn *Runner) writeManifest(outcome types.Outcome) error {
	dir := filepath.Join(rn.outDir, manifestDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	data, err := yaml.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, outcome.Record.ReferenceID+".yaml"), data, 0o644)
}
