// Copyright Bio312 course staff, 2026. All rights reserved.

package types

import "time"

// Mechanism identifies which retrieval mechanism produced a structure file.
type Mechanism string

const (
	// MechanismFiles is the AlphaFold static file probe.
	MechanismFiles Mechanism = "files"

	// MechanismAPI is the AlphaFold prediction API.
	MechanismAPI Mechanism = "api"

	// MechanismHTML is the AlphaFold entry-page scrape.
	MechanismHTML Mechanism = "html"

	// MechanismSwissModel is the SWISS-MODEL repository fallback.
	MechanismSwissModel Mechanism = "swiss-model"
)

// Record is one row of the input table: a reference identifier that prefixes
// every output filename for the row, and a cross-reference token the
// resolution chain starts from. Immutable once read.
type Record struct {
	// ReferenceID is the first column (e.g. a RefSeq accession).
	ReferenceID string `json:"reference_id" yaml:"reference_id"`

	// CrossRefID is the second column (e.g. a UniProt accession), or a
	// missing-value sentinel such as "MISSING".
	CrossRefID string `json:"cross_ref_id" yaml:"cross_ref_id"`
}

// Artifact describes the files downloaded for one record. At most one
// Artifact exists per record: the chain stops at the first success.
type Artifact struct {
	// SourceID is the candidate identifier the successful mechanism used.
	SourceID string `json:"source_id" yaml:"source_id"`

	// Mechanism names the retrieval mechanism that succeeded.
	Mechanism Mechanism `json:"mechanism" yaml:"mechanism"`

	// StructureFile is the local path of the primary structure file.
	StructureFile string `json:"structure_file" yaml:"structure_file"`

	// AuxFiles lists auxiliary downloads (confidence data, extra models)
	// in the order they were saved.
	AuxFiles []string `json:"aux_files,omitempty" yaml:"aux_files,omitempty"`

	// FetchedAt is when the primary download completed.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// Files returns the structure file followed by the auxiliary files.
func (a Artifact) Files() []string {
	return append([]string{a.StructureFile}, a.AuxFiles...)
}

// Status is the terminal state of one record.
type Status string

const (
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// FailReason explains a skipped or failed record.
type FailReason string

const (
	// ReasonNoID marks rows whose cross-reference field was a
	// missing-value sentinel. Not an error.
	ReasonNoID FailReason = "no_id"

	// ReasonExhausted marks rows for which every mechanism, candidate,
	// and fallback tier failed.
	ReasonExhausted FailReason = "exhausted"
)

// Outcome is the per-record terminal result recorded in the run ledger.
type Outcome struct {
	Record   Record     `json:"record" yaml:"record"`
	Status   Status     `json:"status" yaml:"status"`
	Reason   FailReason `json:"reason,omitempty" yaml:"reason,omitempty"`
	Artifact *Artifact  `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}
