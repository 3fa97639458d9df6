// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives per-paper analysis: evidence acquisition,
// depth-dependent completion calls, reconciliation, and the run loop
// that persists results incrementally.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pillumina/PaperFuse/internal/completion"
	"github.com/pillumina/PaperFuse/internal/evidence"
	"github.com/pillumina/PaperFuse/internal/reconcile"
	"github.com/pillumina/PaperFuse/internal/source"
	"github.com/pillumina/PaperFuse/pkg/types"
)

// ErrScoreBelowFloor marks a paper whose triage score fell below the
// minimum-to-save floor. Callers skip persistence entirely.
var ErrScoreBelowFloor = errors.New("score below save floor")

// SourceProvider fetches a paper's flattened source text.
type SourceProvider interface {
	FetchFlattened(ctx context.Context, id string) (string, error)
}

// EvidenceCache stores flattened source text between runs.
type EvidenceCache interface {
	Get(id string) (string, bool)
	Put(id, text string) error
}

// Orchestrator runs the depth state machine for a single paper.
type Orchestrator struct {
	client completion.Client
	source SourceProvider
	cache  EvidenceCache
	cfg    types.PipelineConfig
	log    *slog.Logger
}

// NewOrchestrator wires an orchestrator. cache may be nil to disable
// evidence caching.
func NewOrchestrator(client completion.Client, src SourceProvider, cache EvidenceCache, cfg types.PipelineConfig, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{client: client, source: src, cache: cache, cfg: cfg, log: log}
}

// Analyze produces one analysis result for the paper at the target
// depth. The result's Depth field records the depth actually achieved:
// a standard run whose triage score clears the detail threshold comes
// back as full, and a run whose source archive is unavailable degrades
// to an abstract-only basic result.
func (o *Orchestrator) Analyze(ctx context.Context, p *types.Paper, depth types.Depth) (*types.AnalysisResult, error) {
	switch depth {
	case types.DepthBasic:
		return o.analyzeBasic(ctx, p)
	case types.DepthStandard:
		return o.analyzeStandard(ctx, p)
	case types.DepthFull:
		return o.analyzeFull(ctx, p)
	}
	return nil, fmt.Errorf("unsupported analysis depth %q", depth)
}

func (o *Orchestrator) analyzeBasic(ctx context.Context, p *types.Paper) (*types.AnalysisResult, error) {
	prompt, err := renderPrompt(basicPromptTmpl, newPromptData(p))
	if err != nil {
		return nil, err
	}
	result, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result.Depth = types.DepthBasic
	return result, nil
}

func (o *Orchestrator) analyzeStandard(ctx context.Context, p *types.Paper) (*types.AnalysisResult, error) {
	doc, err := o.sourceDoc(ctx, p.ID)
	if err != nil {
		return o.fallbackBasic(ctx, p, err)
	}

	data := newPromptData(p)
	data.Evidence = evidence.ByDepth(doc, types.DepthStandard)
	prompt, err := renderPrompt(scoringPromptTmpl, data)
	if err != nil {
		return nil, err
	}
	result, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result.Depth = types.DepthStandard

	if result.Score < o.cfg.MinScoreToSave {
		o.log.Info("paper below save floor", "id", p.ID, "score", result.Score)
		return nil, fmt.Errorf("paper %s scored %d: %w", p.ID, result.Score, ErrScoreBelowFloor)
	}
	if result.Score < o.cfg.DetailThreshold {
		return result, nil
	}

	// Phase 2: the score cleared the detail threshold, so spend a
	// second call on the already-downloaded full text.
	o.log.Info("triage score cleared detail threshold", "id", p.ID, "score", result.Score)
	data.Evidence = evidence.ByDepth(doc, types.DepthFull)
	prompt, err = renderPrompt(detailPromptTmpl, data)
	if err != nil {
		return nil, err
	}
	detailed, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	detailed.Depth = types.DepthFull
	return detailed, nil
}

func (o *Orchestrator) analyzeFull(ctx context.Context, p *types.Paper) (*types.AnalysisResult, error) {
	doc, err := o.sourceDoc(ctx, p.ID)
	if err != nil {
		return o.fallbackBasic(ctx, p, err)
	}

	data := newPromptData(p)
	data.Evidence = evidence.ByDepth(doc, types.DepthFull)
	data.ScoreGated = true
	prompt, err := renderPrompt(detailPromptTmpl, data)
	if err != nil {
		return nil, err
	}
	result, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result.Depth = types.DepthFull
	return result, nil
}

// fallbackBasic handles an unavailable source archive: the paper is
// still analyzed from its abstract and the result records the basic
// depth it actually achieved, leaving it eligible for a future deeper
// run. Any other acquisition error is fatal for this paper.
func (o *Orchestrator) fallbackBasic(ctx context.Context, p *types.Paper, cause error) (*types.AnalysisResult, error) {
	if !errors.Is(cause, source.ErrSourceUnavailable) {
		return nil, cause
	}
	o.log.Warn("source unavailable, degrading to abstract-only evidence", "id", p.ID, "error", cause)
	return o.analyzeBasic(ctx, p)
}

// sourceDoc returns the flattened source text for the paper, consulting
// the evidence cache before the network.
func (o *Orchestrator) sourceDoc(ctx context.Context, id string) (string, error) {
	if o.cache != nil {
		if doc, ok := o.cache.Get(id); ok {
			return doc, nil
		}
	}
	doc, err := o.source.FetchFlattened(ctx, id)
	if err != nil {
		return "", err
	}
	if o.cache != nil {
		if err := o.cache.Put(id, doc); err != nil {
			o.log.Warn("caching evidence failed", "id", id, "error", err)
		}
	}
	return doc, nil
}

func (o *Orchestrator) complete(ctx context.Context, user string) (*types.AnalysisResult, error) {
	raw, err := o.client.Complete(ctx, completion.Request{System: systemPrompt, User: user})
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	result, err := reconcile.Reconcile(raw)
	if err != nil {
		return nil, fmt.Errorf("reconciling response: %w", err)
	}
	if result.Degraded {
		o.log.Warn("degraded result reconciled from malformed response")
	}
	return result, nil
}
