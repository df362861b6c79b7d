// Copyright Bio312 course staff, 2026. All rights reserved.

// Integration tests: full resolution chain over mock AlphaFold, UniProt,
// and SWISS-MODEL endpoints.

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.yaml.in/yaml/v3"

	"github.com/Bio312/labfiles/internal/alphafold"
	"github.com/Bio312/labfiles/internal/httputil"
	"github.com/Bio312/labfiles/internal/ledger"
	"github.com/Bio312/labfiles/internal/swissmodel"
	"github.com/Bio312/labfiles/internal/uniprot"
	"github.com/Bio312/labfiles/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

const fakePDBContent = "ATOM      1  N   MET A   1\nEND\n"

// requestLog records every request path the mock server saw, in order.
type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, p)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func (l *requestLog) count() int {
	return len(l.all())
}

func (l *requestLog) countPrefix(prefix string) int {
	n := 0
	for _, p := range l.all() {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

// mockServices is one httptest server standing in for every remote host.
// Static files exist for accessions in afFiles; searchMap and uniprotMap
// hold xref responses; swissPages maps accessions to coordinate-id pages.
type mockServices struct {
	log        *requestLog
	afFiles    map[string]bool // "AF-P02185-F1-model_v6.pdb" -> exists
	searchMap  map[string]string
	uniprotMap map[string]string
	swissPages map[string][]string // accession -> coordinate ids
}

func (m *mockServices) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.log.add(r.URL.Path)
		switch {
		case strings.HasPrefix(r.URL.Path, "/files/"):
			name := strings.TrimPrefix(r.URL.Path, "/files/")
			if m.afFiles[name] {
				fmt.Fprint(w, fakePDBContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)

		case strings.HasPrefix(r.URL.Path, "/api/prediction/"):
			w.WriteHeader(http.StatusNotFound)

		case strings.HasPrefix(r.URL.Path, "/entry/"):
			w.WriteHeader(http.StatusNotFound)

		case strings.HasPrefix(r.URL.Path, "/api/search"):
			q := r.URL.Query().Get("q")
			if acc, ok := m.searchMap[q]; ok {
				fmt.Fprintf(w, `{"docs": [{"uniprotAccession": %q}]}`, acc)
				return
			}
			fmt.Fprint(w, `{"docs": []}`)

		case strings.HasPrefix(r.URL.Path, "/uniprotkb/search"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"results": []}`)

		case strings.HasPrefix(r.URL.Path, "/uniprotkb/"):
			token := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/uniprotkb/"), ".json")
			if acc, ok := m.uniprotMap[token]; ok {
				fmt.Fprintf(w, `{"primaryAccession": %q}`, acc)
				return
			}
			w.WriteHeader(http.StatusNotFound)

		case strings.HasPrefix(r.URL.Path, "/repository/coordinates/"):
			fmt.Fprint(w, fakePDBContent)

		case strings.HasPrefix(r.URL.Path, "/repository/uniprot/"):
			acc := strings.TrimPrefix(r.URL.Path, "/repository/uniprot/")
			ids, ok := m.swissPages[acc]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			for _, id := range ids {
				fmt.Fprintf(w, `{"coordinate_id": %q}`+"\n", id)
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// startMock serves m and rewires every base URL to it, restoring them
// when the test ends.
func startMock(t *testing.T, m *mockServices) *httptest.Server {
	t.Helper()
	if m.log == nil {
		m.log = &requestLog{}
	}
	ts := httptest.NewServer(m.handler())
	t.Cleanup(ts.Close)

	oldFile, oldAPI, oldEntry, oldSearch := alphafold.FileBase, alphafold.APIBase, alphafold.EntryBase, alphafold.SearchBase
	oldUEntry, oldUSearch := uniprot.EntryBase, uniprot.SearchBase
	oldRepo, oldCoord := swissmodel.RepositoryBase, swissmodel.CoordinateBase

	alphafold.FileBase = ts.URL + "/files/"
	alphafold.APIBase = ts.URL + "/api/prediction/"
	alphafold.EntryBase = ts.URL + "/entry/"
	alphafold.SearchBase = ts.URL + "/api/search"
	uniprot.EntryBase = ts.URL + "/uniprotkb/"
	uniprot.SearchBase = ts.URL + "/uniprotkb/search"
	swissmodel.RepositoryBase = ts.URL + "/repository/uniprot/"
	swissmodel.CoordinateBase = ts.URL + "/repository/coordinates/"

	t.Cleanup(func() {
		alphafold.FileBase, alphafold.APIBase, alphafold.EntryBase, alphafold.SearchBase = oldFile, oldAPI, oldEntry, oldSearch
		uniprot.EntryBase, uniprot.SearchBase = oldUEntry, oldUSearch
		swissmodel.RepositoryBase, swissmodel.CoordinateBase = oldRepo, oldCoord
	})
	return ts
}

func newRunner(outDir string, log *zap.Logger) *Runner {
	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
		OutDir:     outDir,
		SWMMax:     1,
	}
	return NewRunner(httputil.New(cfg.HTTPConfig), cfg, log, nil)
}

func TestRunMissingSentinelNoNetworkNoFiles(t *testing.T) {
	m := &mockServices{log: &requestLog{}}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())

	records := []types.Record{
		{ReferenceID: "NP_1", CrossRefID: "MISSING"},
		{ReferenceID: "NP_2", CrossRefID: "na"},
		{ReferenceID: "NP_3", CrossRefID: "-"},
	}
	result, err := rn.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Skipped != 3 || result.Resolved != 0 || result.Failed != 0 {
		t.Errorf("result = %+v, want 3 skipped", result)
	}
	if n := m.log.count(); n != 0 {
		t.Errorf("network calls = %d, want 0 (paths: %v)", n, m.log.all())
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("output files = %v, want none", entries)
	}
	for _, o := range result.Outcomes {
		if o.Reason != types.ReasonNoID {
			t.Errorf("reason = %q, want %q", o.Reason, types.ReasonNoID)
		}
	}
}

func TestRunDirectHitShortCircuits(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())

	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_001355", CrossRefID: "p02185"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("result = %+v, want 1 resolved", result)
	}

	art := result.Outcomes[0].Artifact
	if art.Mechanism != types.MechanismFiles {
		t.Errorf("mechanism = %q, want %q", art.Mechanism, types.MechanismFiles)
	}
	if got := filepath.Base(art.StructureFile); got != "NP_001355__AF-P02185-F1-model_v6.pdb" {
		t.Errorf("structure file = %q", got)
	}

	// First success wins: no cross-reference or SWISS-MODEL traffic.
	for _, prefix := range []string{"/api/search", "/uniprotkb/", "/repository/"} {
		if n := m.log.countPrefix(prefix); n != 0 {
			t.Errorf("%s calls = %d, want 0", prefix, n)
		}
	}
}

func TestRunIsoformTriedBeforeBase(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-Q8WZ42-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	rn := newRunner(t.TempDir(), zap.NewNop())
	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "XP_1", CrossRefID: "Q8WZ42-2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("result = %+v, want 1 resolved", result)
	}

	// The isoform-specific probe URLs must all come before the first
	// base-accession probe.
	var firstBase = -1
	var lastIsoform = -1
	for i, p := range m.log.all() {
		if strings.Contains(p, "AF-Q8WZ42-2-") && i > lastIsoform {
			lastIsoform = i
		}
		if strings.Contains(p, "AF-Q8WZ42-F") && firstBase == -1 {
			firstBase = i
		}
	}
	if lastIsoform == -1 {
		t.Fatal("isoform candidate was never probed")
	}
	if firstBase != -1 && firstBase < lastIsoform {
		t.Errorf("base accession probed at %d before isoform finished at %d", firstBase, lastIsoform)
	}
}

func TestRunSearchMappingReentersChain(t *testing.T) {
	m := &mockServices{
		log:       &requestLog{},
		afFiles:   map[string]bool{"AF-P69905-F1-model_v6.pdb": true},
		searchMap: map[string]string{"HBA_HUMAN": "P69905"},
	}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())

	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_000549", CrossRefID: "HBA_HUMAN"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("result = %+v, want 1 resolved", result)
	}

	art := result.Outcomes[0].Artifact
	if art.SourceID != "P69905" {
		t.Errorf("source = %q, want mapped accession P69905", art.SourceID)
	}
	if got := filepath.Base(art.StructureFile); got != "NP_000549__AF-P69905-F1-model_v6.pdb" {
		t.Errorf("structure file = %q", got)
	}
	// The mapped candidate went through AlphaFold, not SWISS-MODEL.
	if n := m.log.countPrefix("/repository/"); n != 0 {
		t.Errorf("SWISS-MODEL calls = %d, want 0", n)
	}
}

func TestRunUniProtMappingReentersChain(t *testing.T) {
	m := &mockServices{
		log:        &requestLog{},
		afFiles:    map[string]bool{"AF-P02144-F1-model_v4.pdb": true},
		uniprotMap: map[string]string{"MB_HUMAN": "P02144"},
	}
	startMock(t, m)

	rn := newRunner(t.TempDir(), zap.NewNop())
	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_005359", CrossRefID: "MB_HUMAN"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("result = %+v, want 1 resolved", result)
	}
	if got := result.Outcomes[0].Artifact.SourceID; got != "P02144" {
		t.Errorf("source = %q, want P02144", got)
	}
}

func TestRunSwissModelFallback(t *testing.T) {
	m := &mockServices{
		log:        &requestLog{},
		swissPages: map[string][]string{"P99998": {"aabbccddeeff00112233445566778899"}},
	}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())

	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_7", CrossRefID: "P99998"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("result = %+v, want 1 resolved", result)
	}

	art := result.Outcomes[0].Artifact
	if art.Mechanism != types.MechanismSwissModel {
		t.Errorf("mechanism = %q, want %q", art.Mechanism, types.MechanismSwissModel)
	}
	want := "NP_7__SWM-P99998-aabbccddeeff00112233445566778899.pdb"
	if got := filepath.Base(art.StructureFile); got != want {
		t.Errorf("structure file = %q, want %q", got, want)
	}
}

func TestRunExhaustionContinuesBatch(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	rn := newRunner(t.TempDir(), zap.NewNop())
	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_BAD", CrossRefID: "UNRESOLVABLE"},
		{ReferenceID: "NP_GOOD", CrossRefID: "P02185"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 1 || result.Resolved != 1 {
		t.Errorf("result = %+v, want 1 failed and 1 resolved", result)
	}
	if result.Outcomes[0].Reason != types.ReasonExhausted {
		t.Errorf("reason = %q, want %q", result.Outcomes[0].Reason, types.ReasonExhausted)
	}
	if !result.HasFailures() {
		t.Error("HasFailures() = false, want true with one exhausted record")
	}
}

func TestRunSelfMappingNotReprobed(t *testing.T) {
	// The search endpoint maps the token back to itself; the candidate
	// was already tried directly and must not be probed a second time.
	m := &mockServices{
		log:       &requestLog{},
		searchMap: map[string]string{"P99999": "P99999"},
	}
	startMock(t, m)

	rn := newRunner(t.TempDir(), zap.NewNop())
	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_7", CrossRefID: "P99999"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}
	// One direct pass only: 2 versions x 5 fragments of static probes,
	// one prediction API call, one entry-page scrape.
	if n := m.log.countPrefix("/files/"); n != 10 {
		t.Errorf("static probes = %d, want 10 (paths: %v)", n, m.log.all())
	}
	if n := m.log.countPrefix("/api/prediction/"); n != 1 {
		t.Errorf("prediction API calls = %d, want 1", n)
	}
	if n := m.log.countPrefix("/entry/"); n != 1 {
		t.Errorf("entry-page scrapes = %d, want 1", n)
	}
}

func TestRunCandidateRetriedAcrossRecords(t *testing.T) {
	// The tried-candidate set is scoped to one record: two records
	// sharing a candidate each probe and download it independently.
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())
	result, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_1", CrossRefID: "P02185"},
		{ReferenceID: "NP_2", CrossRefID: "P02185"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Resolved != 2 {
		t.Fatalf("result = %+v, want 2 resolved", result)
	}
	for _, ref := range []string{"NP_1", "NP_2"} {
		want := filepath.Join(outDir, ref+"__AF-P02185-F1-model_v6.pdb")
		if _, err := os.Stat(want); err != nil {
			t.Errorf("missing structure file for %s: %v", ref, err)
		}
	}
	// Probe plus download per record, so the model path is requested
	// twice per record.
	if n := m.log.countPrefix("/files/AF-P02185-F1-model_v6.pdb"); n != 4 {
		t.Errorf("model requests = %d, want 4 (paths: %v)", n, m.log.all())
	}
}

func TestRunRerunOverwritesSameFilenames(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	outDir := t.TempDir()
	records := []types.Record{{ReferenceID: "NP_001355", CrossRefID: "P02185"}}

	listFiles := func() []string {
		entries, err := os.ReadDir(outDir)
		if err != nil {
			t.Fatalf("reading out dir: %v", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		return names
	}

	rn := newRunner(outDir, zap.NewNop())
	if _, err := rn.Run(context.Background(), records); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first := listFiles()

	if _, err := rn.Run(context.Background(), records); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second := listFiles()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-run changed file set: %v vs %v", first, second)
	}
}

func TestRunWritesManifest(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	outDir := t.TempDir()
	rn := newRunner(outDir, zap.NewNop())
	if _, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_001355", CrossRefID: "P02185"},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "manifest", "NP_001355.yaml"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var outcome types.Outcome
	if err := yaml.Unmarshal(data, &outcome); err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	if outcome.Status != types.StatusResolved {
		t.Errorf("manifest status = %q, want resolved", outcome.Status)
	}
	if outcome.Artifact == nil || outcome.Artifact.Mechanism != types.MechanismFiles {
		t.Errorf("manifest artifact = %+v", outcome.Artifact)
	}
}

func TestRunRecordsLedger(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	outDir := t.TempDir()
	led, err := ledger.Open(filepath.Join(outDir, "ledger"))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	defer led.Close()

	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
		OutDir:     outDir,
		SWMMax:     1,
	}
	rn := NewRunner(httputil.New(cfg.HTTPConfig), cfg, zap.NewNop(), led)

	if _, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_001355", CrossRefID: "P02185"},
		{ReferenceID: "NP_2", CrossRefID: "MISSING"},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := led.RecentRuns(1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Resolved != 1 || runs[0].Skipped != 1 {
		t.Errorf("run summary = %+v, want 1 resolved and 1 skipped", runs[0])
	}
}

func TestRunEmitsStructuredOutcomeEvents(t *testing.T) {
	m := &mockServices{
		log:     &requestLog{},
		afFiles: map[string]bool{"AF-P02185-F1-model_v6.pdb": true},
	}
	startMock(t, m)

	core, observed := observer.New(zap.InfoLevel)
	rn := newRunner(t.TempDir(), zap.New(core))

	if _, err := rn.Run(context.Background(), []types.Record{
		{ReferenceID: "NP_001355", CrossRefID: "P02185"},
		{ReferenceID: "NP_2", CrossRefID: "MISSING"},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var finals []observer.LoggedEntry
	for _, e := range observed.All() {
		fields := e.ContextMap()
		if fields["stage"] == "final" || fields["stage"] == "input" {
			finals = append(finals, e)
		}
	}
	if len(finals) != 2 {
		t.Fatalf("terminal events = %d, want 2", len(finals))
	}

	first := finals[0].ContextMap()
	if first["record"] != "NP_001355" || first["outcome"] != "resolved" || first["mechanism"] != "files" {
		t.Errorf("first terminal event = %v", first)
	}
	second := finals[1].ContextMap()
	if second["record"] != "NP_2" || second["outcome"] != "skipped" {
		t.Errorf("second terminal event = %v", second)
	}
}
