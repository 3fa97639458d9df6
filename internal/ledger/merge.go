// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"time"

	"github.com/pillumina/PaperFuse/pkg/types"
)

// Merge folds an analysis result into the stored record for a paper.
// Metadata always comes from meta. The stored depth never decreases:
// when the result's depth is at or above the stored depth the result's
// assessment replaces the stored one, otherwise only empty fields are
// filled in so a forced lower-depth rerun cannot erase richer detail.
// Array fields are unioned rather than replaced. existing may be nil
// for a paper seen for the first time.
func Merge(existing, meta *types.Paper, result *types.AnalysisResult, now time.Time) *types.Paper {
	merged := *meta
	if existing != nil {
		merged.Score = existing.Score
		merged.ScoreRationale = existing.ScoreRationale
		merged.Tags = existing.Tags
		merged.Confidence = existing.Confidence
		merged.Summary = existing.Summary
		merged.Insights = existing.Insights
		merged.Notes = existing.Notes
		merged.CodeLinks = existing.CodeLinks
		merged.Formulas = existing.Formulas
		merged.Algorithms = existing.Algorithms
		merged.Diagram = existing.Diagram
		merged.DeepAnalyzed = existing.DeepAnalyzed
		merged.Depth = existing.Depth
		merged.AnalyzedAt = existing.AnalyzedAt
	}

	if result == nil {
		return &merged
	}

	upgrade := result.Depth >= merged.Depth
	if upgrade {
		merged.Score = result.Score
		merged.ScoreRationale = result.ScoreRationale
		merged.Confidence = result.Confidence
		merged.Depth = result.Depth
	} else {
		if merged.Score == 0 {
			merged.Score = result.Score
		}
		if merged.ScoreRationale == "" {
			merged.ScoreRationale = result.ScoreRationale
		}
		if merged.Confidence == "" {
			merged.Confidence = result.Confidence
		}
	}

	merged.Tags = unionStrings(merged.Tags, result.Tags)

	if result.Detail != nil {
		d := result.Detail
		if upgrade || merged.Summary == "" {
			if d.Summary != "" {
				merged.Summary = d.Summary
			}
		}
		if upgrade || merged.Notes == "" {
			if d.Notes != "" {
				merged.Notes = d.Notes
			}
		}
		merged.Insights = unionStrings(merged.Insights, d.Insights)
		merged.CodeLinks = unionStrings(merged.CodeLinks, d.CodeLinks)
		merged.Formulas = unionFormulas(merged.Formulas, d.Formulas)
		merged.Algorithms = unionAlgorithms(merged.Algorithms, d.Algorithms)
		if d.Diagram != nil && (upgrade || merged.Diagram == nil) {
			merged.Diagram = d.Diagram
		}
	}

	// Triage-only standard results carry no detail payload and do not
	// count as a deep analysis.
	if result.Detail != nil || result.Depth == types.DepthFull {
		merged.DeepAnalyzed = true
	}
	merged.AnalyzedAt = now

	return &merged
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionFormulas(a, b []types.FormulaRecord) []types.FormulaRecord {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]types.FormulaRecord(nil), a...)
	for _, f := range a {
		seen[f.Name] = true
	}
	for _, f := range b {
		if !seen[f.Name] {
			seen[f.Name] = true
			out = append(out, f)
		}
	}
	return out
}

func unionAlgorithms(a, b []types.AlgorithmRecord) []types.AlgorithmRecord {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]types.AlgorithmRecord(nil), a...)
	for _, rec := range a {
		seen[rec.Name] = true
	}
	for _, rec := range b {
		if !seen[rec.Name] {
			seen[rec.Name] = true
			out = append(out, rec)
		}
	}
	return out
}
