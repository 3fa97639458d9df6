// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillumina/PaperFuse/internal/completion"
	"github.com/pillumina/PaperFuse/internal/metadata"
	"github.com/pillumina/PaperFuse/internal/source"
	"github.com/pillumina/PaperFuse/pkg/types"
)

// stubCompleter replays canned responses and records the prompts it saw.
type stubCompleter struct {
	responses []string
	requests  []completion.Request
	err       error
}

func (s *stubCompleter) Complete(ctx context.Context, req completion.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", fmt.Errorf("stub exhausted after %d calls", len(s.requests))
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *stubCompleter) Name() string { return "stub/test-model" }

type stubSource struct {
	doc   string
	err   error
	calls int
}

func (s *stubSource) FetchFlattened(ctx context.Context, id string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.doc, nil
}

type memCache map[string]string

func (c memCache) Get(id string) (string, bool) { doc, ok := c[id]; return doc, ok }
func (c memCache) Put(id, text string) error    { c[id] = text; return nil }

type memLedger struct {
	stored     map[string]*types.Paper
	ineligible map[string]bool
	applyErr   error
}

func newMemLedger() *memLedger {
	return &memLedger{stored: map[string]*types.Paper{}, ineligible: map[string]bool{}}
}

func (m *memLedger) Eligible(ctx context.Context, id string, target types.Depth, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return !m.ineligible[id], nil
}

func (m *memLedger) Apply(ctx context.Context, meta *types.Paper, result *types.AnalysisResult) (*types.Paper, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	p := *meta
	p.Score = result.Score
	p.Tags = result.Tags
	p.Depth = result.Depth
	p.AnalyzedAt = time.Now()
	m.stored[p.ID] = &p
	return &p, nil
}

func testPaper(id string) *types.Paper {
	return &types.Paper{
		ID:         id,
		Title:      "Scaling Laws for Sparse Mixture Models",
		Authors:    []string{"R. Chen", "M. Okafor"},
		Abstract:   strings.Repeat("We study how sparse mixture-of-experts models scale with parameter count and training compute. ", 3),
		Categories: []string{"cs.LG"},
		Published:  time.Now().Add(-24 * time.Hour),
	}
}

const sampleDoc = `\documentclass{article}
\begin{document}
\section{Introduction}
Sparse models decouple capacity from per-token compute.
\section{Method}
We gate experts with a learned router.
\section{Conclusion}
Sparsity scales favorably past one billion parameters.
\end{document}`

func testConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Depth:           "standard",
		MinScoreToSave:  5,
		DetailThreshold: 7,
		MaxPapers:       20,
	}
}

// --- Orchestrator ---

func TestAnalyzeBasic(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 6, "tags": ["llm"], "confidence": "medium", "detail": {"summary": "Sparse scaling study.", "notes": "worth a skim"}}`,
	}}
	src := &stubSource{doc: sampleDoc}
	o := NewOrchestrator(client, src, nil, testConfig(), nil)

	result, err := o.Analyze(context.Background(), testPaper("2607.01001"), types.DepthBasic)
	require.NoError(t, err)

	assert.Equal(t, types.DepthBasic, result.Depth)
	assert.Equal(t, 6, result.Score)
	assert.Equal(t, 0, src.calls, "basic depth never touches the source archive")
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].User, "sparse mixture-of-experts")
	assert.Contains(t, client.requests[0].User, "Scaling Laws for Sparse Mixture Models")
}

func TestAnalyzeStandardBelowSaveFloor(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 4, "tags": ["llm"], "confidence": "medium"}`,
	}}
	o := NewOrchestrator(client, &stubSource{doc: sampleDoc}, nil, testConfig(), nil)

	_, err := o.Analyze(context.Background(), testPaper("2607.01002"), types.DepthStandard)
	assert.ErrorIs(t, err, ErrScoreBelowFloor)
	assert.Len(t, client.requests, 1, "no detail call for a discarded paper")
}

func TestAnalyzeStandardKeepsTriageResult(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 6, "score_rationale": "solid but incremental", "tags": ["llm"], "confidence": "medium"}`,
	}}
	o := NewOrchestrator(client, &stubSource{doc: sampleDoc}, nil, testConfig(), nil)

	result, err := o.Analyze(context.Background(), testPaper("2607.01003"), types.DepthStandard)
	require.NoError(t, err)

	assert.Equal(t, types.DepthStandard, result.Depth)
	assert.Equal(t, 6, result.Score)
	assert.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].User, "Introduction")
	assert.Contains(t, client.requests[0].User, "Conclusion")
	assert.NotContains(t, client.requests[0].User, "learned router", "triage sees only intro and conclusion")
}

func TestAnalyzeStandardEscalatesToFull(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 9, "tags": ["llm"], "confidence": "high"}`,
		`{"score": 9, "tags": ["llm", "systems"], "confidence": "high", "detail": {"summary": "Thorough sparse scaling analysis.", "insights": ["router quality dominates"], "code_links": ["https://github.com/lab/sparse"]}}`,
	}}
	src := &stubSource{doc: sampleDoc}
	o := NewOrchestrator(client, src, nil, testConfig(), nil)

	result, err := o.Analyze(context.Background(), testPaper("2607.01004"), types.DepthStandard)
	require.NoError(t, err)

	assert.Equal(t, types.DepthFull, result.Depth, "clearing the detail threshold upgrades the result to full")
	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].User, "learned router", "detail call sees the full text")
	assert.Equal(t, 1, src.calls, "the source is downloaded once and reused for phase 2")
	require.NotNil(t, result.Detail)
	assert.Equal(t, []string{"https://github.com/lab/sparse"}, result.Detail.CodeLinks)
}

func TestAnalyzeFull(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 8, "tags": ["llm"], "confidence": "high", "detail": {"summary": "Full read.", "formulas": [{"name": "gating", "latex": "g(x)", "explanation": "router gate"}]}}`,
	}}
	o := NewOrchestrator(client, &stubSource{doc: sampleDoc}, nil, testConfig(), nil)

	result, err := o.Analyze(context.Background(), testPaper("2607.01005"), types.DepthFull)
	require.NoError(t, err)

	assert.Equal(t, types.DepthFull, result.Depth)
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].User, "Populate \"formulas\"", "full depth gates detail on the provider's own score")
}

func TestAnalyzeSourceUnavailableFallsBackToBasic(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 5, "tags": ["llm"], "confidence": "low"}`,
	}}
	src := &stubSource{err: fmt.Errorf("no archive: %w", source.ErrSourceUnavailable)}
	o := NewOrchestrator(client, src, nil, testConfig(), nil)

	result, err := o.Analyze(context.Background(), testPaper("2607.01006"), types.DepthStandard)
	require.NoError(t, err)

	assert.Equal(t, types.DepthBasic, result.Depth, "abstract-only fallback records the depth actually achieved")
	require.Len(t, client.requests, 1)
	assert.NotContains(t, client.requests[0].User, "Extracted sections")
}

func TestAnalyzeOtherSourceErrorPropagates(t *testing.T) {
	boom := errors.New("archive host returned HTTP 500")
	o := NewOrchestrator(&stubCompleter{}, &stubSource{err: boom}, nil, testConfig(), nil)

	_, err := o.Analyze(context.Background(), testPaper("2607.01007"), types.DepthStandard)
	assert.ErrorIs(t, err, boom)
}

func TestAnalyzeUsesEvidenceCache(t *testing.T) {
	client := &stubCompleter{responses: []string{
		`{"score": 6, "tags": ["llm"], "confidence": "medium"}`,
		`{"score": 6, "tags": ["llm"], "confidence": "medium"}`,
	}}
	src := &stubSource{doc: sampleDoc}
	cache := memCache{}
	o := NewOrchestrator(client, src, cache, testConfig(), nil)
	ctx := context.Background()

	_, err := o.Analyze(ctx, testPaper("2607.01008"), types.DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Contains(t, cache, "2607.01008")

	_, err = o.Analyze(ctx, testPaper("2607.01008"), types.DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second run is served from the cache")
}

// --- Runner ---

type stubMetadata struct {
	papers map[string]*types.Paper
	listed []types.Paper
}

func (s *stubMetadata) List(ctx context.Context, categories []string, lookback time.Duration) ([]types.Paper, error) {
	return s.listed, nil
}

func (s *stubMetadata) Get(ctx context.Context, id string) (*types.Paper, error) {
	if p, ok := s.papers[id]; ok {
		return p, nil
	}
	return nil, metadata.ErrNotFound
}

type stubAnalyzer struct {
	results map[string]*types.AnalysisResult
	errs    map[string]error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, p *types.Paper, depth types.Depth) (*types.AnalysisResult, error) {
	if err := s.errs[p.ID]; err != nil {
		return nil, err
	}
	if r, ok := s.results[p.ID]; ok {
		return r, nil
	}
	return &types.AnalysisResult{Score: 6, Tags: []string{"llm"}, Depth: depth}, nil
}

func TestRunByID(t *testing.T) {
	p := testPaper("2607.02001")
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{papers: map[string]*types.Paper{p.ID: p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{},
		Config:   testConfig(),
	}

	var out bytes.Buffer
	summary, err := r.Run(context.Background(), &out, []string{p.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Errored)
	assert.NotEmpty(t, summary.RunID)
	assert.Contains(t, led.stored, p.ID)
	assert.Contains(t, out.String(), p.ID)
	assert.Contains(t, out.String(), "1 processed")
}

func TestRunPrefilterRejectionIsSilent(t *testing.T) {
	p := testPaper("2607.02002")
	p.Abstract = "Too short to analyze."
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Errored, "prefilter rejection is not an error")
	assert.Empty(t, led.stored)
}

func TestRunRejectsOverRevisedPaper(t *testing.T) {
	p := testPaper("2607.02011")
	p.RawID = "2607.02011v6"
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped, "sixth revision exceeds the version ceiling")
	assert.Empty(t, led.stored)
}

func TestRunIsolatesPerPaperFailures(t *testing.T) {
	broken := testPaper("2607.02003")
	healthy := testPaper("2607.02004")
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*broken, *healthy}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{errs: map[string]error{broken.ID: errors.New("completion call: boom")}},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err, "a single paper's failure never aborts the batch")

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Errored)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], broken.ID)
	assert.Contains(t, led.stored, healthy.ID)
}

func TestRunScoreBelowFloorSkips(t *testing.T) {
	p := testPaper("2607.02005")
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{errs: map[string]error{p.ID: fmt.Errorf("scored 4: %w", ErrScoreBelowFloor)}},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Errored)
	assert.Empty(t, led.stored, "papers below the save floor are never persisted")
}

func TestRunSkipsIneligiblePapers(t *testing.T) {
	p := testPaper("2607.02006")
	led := newMemLedger()
	led.ineligible[p.ID] = true
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, led.stored)
}

func TestRunAbsentScoreUsesPrefilterBase(t *testing.T) {
	p := testPaper("2607.02007")
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: []types.Paper{*p}},
		Ledger:   led,
		Analyzer: &stubAnalyzer{results: map[string]*types.AnalysisResult{
			p.ID: {Tags: []string{"llm"}, Depth: types.DepthBasic},
		}},
		Config: testConfig(),
	}

	_, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)

	require.Contains(t, led.stored, p.ID)
	assert.Equal(t, 5, led.stored[p.ID].Score, "absent score falls back to the prefilter base")
}

func TestRunCapsPaperCount(t *testing.T) {
	var listed []types.Paper
	for i := 0; i < 5; i++ {
		listed = append(listed, *testPaper(fmt.Sprintf("2607.0300%d", i)))
	}
	cfg := testConfig()
	cfg.MaxPapers = 2
	led := newMemLedger()
	r := &Runner{
		Metadata: &stubMetadata{listed: listed},
		Ledger:   led,
		Analyzer: &stubAnalyzer{},
		Config:   cfg,
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
}

func TestRunUnknownIDRecordedAsError(t *testing.T) {
	r := &Runner{
		Metadata: &stubMetadata{papers: map[string]*types.Paper{}},
		Ledger:   newMemLedger(),
		Analyzer: &stubAnalyzer{},
		Config:   testConfig(),
	}

	summary, err := r.Run(context.Background(), &bytes.Buffer{}, []string{"9999.99999"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errored)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "9999.99999")
}

func TestRunRejectsUnusableDepth(t *testing.T) {
	cfg := testConfig()
	cfg.Depth = "sideways"
	r := &Runner{Metadata: &stubMetadata{}, Ledger: newMemLedger(), Analyzer: &stubAnalyzer{}, Config: cfg}

	_, err := r.Run(context.Background(), &bytes.Buffer{}, nil)
	assert.Error(t, err)
}
