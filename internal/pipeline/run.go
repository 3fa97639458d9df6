// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pillumina/PaperFuse/internal/prefilter"
	"github.com/pillumina/PaperFuse/pkg/types"
)

// MetadataSource lists recent papers and resolves single ids.
type MetadataSource interface {
	List(ctx context.Context, categories []string, lookback time.Duration) ([]types.Paper, error)
	Get(ctx context.Context, id string) (*types.Paper, error)
}

// Ledger is the persistence surface the run loop needs.
type Ledger interface {
	Eligible(ctx context.Context, id string, target types.Depth, force bool) (bool, error)
	Apply(ctx context.Context, meta *types.Paper, result *types.AnalysisResult) (*types.Paper, error)
}

// Analyzer produces one analysis result per paper.
type Analyzer interface {
	Analyze(ctx context.Context, p *types.Paper, depth types.Depth) (*types.AnalysisResult, error)
}

// Runner iterates papers sequentially, isolating every failure to the
// paper that caused it and persisting each result as soon as it lands.
type Runner struct {
	Metadata MetadataSource
	Ledger   Ledger
	Analyzer Analyzer
	Config   types.PipelineConfig
	Log      *slog.Logger
}

// RunSummary aggregates the outcome of one run.
type RunSummary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Depth     types.Depth   `json:"depth" yaml:"depth"`
	Processed int           `json:"processed" yaml:"processed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Errored   int           `json:"errored" yaml:"errored"`
	Errors    []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Run analyzes the given paper ids, or, when ids is empty, the recent
// papers listed from the configured categories. Per-paper failures are
// recorded in the summary and never abort the batch. Progress lines go
// to w.
func (r *Runner) Run(ctx context.Context, w io.Writer, ids []string) (*RunSummary, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	depth, err := types.ParseDepth(r.Config.Depth)
	if err != nil {
		return nil, err
	}
	if depth == types.DepthNone {
		return nil, fmt.Errorf("depth %q cannot drive an analysis run", r.Config.Depth)
	}

	summary := &RunSummary{RunID: uuid.NewString(), Depth: depth}
	started := time.Now()
	log = log.With("run_id", summary.RunID)
	log.Info("starting analysis run", "depth", depth, "force", r.Config.Force)

	papers, gatherErrs := r.gather(ctx, ids)
	for _, e := range gatherErrs {
		summary.Errored++
		summary.Errors = append(summary.Errors, e)
	}
	fmt.Fprintf(w, "Run %s: %d paper(s) at depth %s\n", summary.RunID, len(papers), depth)

	for i := range papers {
		p := &papers[i]

		rawID := p.RawID
		if rawID == "" {
			rawID = p.ID
		}
		verdict := prefilter.Evaluate(p, rawID)
		if !verdict.Passed {
			log.Debug("prefilter rejected paper", "id", p.ID, "reason", verdict.Reason)
			summary.Skipped++
			continue
		}

		ok, err := r.Ledger.Eligible(ctx, p.ID, depth, r.Config.Force)
		if err != nil {
			summary.Errored++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: eligibility check: %v", p.ID, err))
			continue
		}
		if !ok {
			log.Debug("paper already analyzed at sufficient depth", "id", p.ID)
			summary.Skipped++
			continue
		}

		result, err := r.Analyzer.Analyze(ctx, p, depth)
		if errors.Is(err, ErrScoreBelowFloor) {
			summary.Skipped++
			continue
		}
		if err != nil {
			summary.Errored++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			log.Error("analyzing paper failed", "id", p.ID, "error", err)
			continue
		}
		if result.Score == 0 {
			// Abstract-only results may omit the score; fall back to the
			// prefilter's heuristic base score.
			result.Score = verdict.BaseScore
		}

		if _, err := r.Ledger.Apply(ctx, p, result); err != nil {
			summary.Errored++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: persisting: %v", p.ID, err))
			log.Error("persisting result failed", "id", p.ID, "error", err)
			continue
		}

		summary.Processed++
		fmt.Fprintf(w, "  [%d/%d] %s score=%d depth=%s tags=%v\n",
			i+1, len(papers), p.ID, result.Score, result.Depth, result.Tags)
	}

	summary.Elapsed = time.Since(started).Round(time.Millisecond)
	fmt.Fprintf(w, "Done: %d processed, %d skipped, %d errored in %s\n",
		summary.Processed, summary.Skipped, summary.Errored, summary.Elapsed)
	log.Info("run complete",
		"processed", summary.Processed, "skipped", summary.Skipped, "errored", summary.Errored)

	return summary, nil
}

// gather resolves the work list: explicit ids when given, otherwise a
// category listing over the lookback window capped at MaxPapers.
func (r *Runner) gather(ctx context.Context, ids []string) ([]types.Paper, []string) {
	if len(ids) > 0 {
		var papers []types.Paper
		var errs []string
		for _, id := range ids {
			p, err := r.Metadata.Get(ctx, id)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			papers = append(papers, *p)
		}
		return papers, errs
	}

	lookback := time.Duration(r.Config.LookbackDays) * 24 * time.Hour
	papers, err := r.Metadata.List(ctx, r.Config.Categories, lookback)
	if err != nil {
		return nil, []string{fmt.Sprintf("listing papers: %v", err)}
	}
	if max := r.Config.MaxPapers; max > 0 && len(papers) > max {
		papers = papers[:max]
	}
	return papers, nil
}
