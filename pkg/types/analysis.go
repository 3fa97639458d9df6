// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Confidence levels reported with an analysis result.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// KnownTags is the closed set of classification tags the pipeline accepts.
// Tags outside this set are dropped during reconciliation.
var KnownTags = []string{
	"llm",
	"nlp",
	"cv",
	"multimodal",
	"rl",
	"agents",
	"systems",
	"robotics",
	"theory",
	"other",
}

// FallbackTag is assigned when reconciliation leaves no valid tags.
const FallbackTag = "other"

// DetailPayload holds the optional deep-analysis fields of a result.
type DetailPayload struct {
	// Summary is a free-text summary of the paper.
	Summary string `json:"summary" yaml:"summary"`

	// Insights are bullet takeaways.
	Insights []string `json:"insights" yaml:"insights"`

	// Notes are free-text engineering notes.
	Notes string `json:"notes" yaml:"notes"`

	// CodeLinks are candidate code resource links, validated during
	// reconciliation.
	CodeLinks []string `json:"code_links" yaml:"code_links"`

	// Formulas are notable formulas with explanations.
	Formulas []FormulaRecord `json:"formulas" yaml:"formulas"`

	// Algorithms are notable algorithms with step lists.
	Algorithms []AlgorithmRecord `json:"algorithms" yaml:"algorithms"`

	// Diagram is an optional flow diagram.
	Diagram *DiagramRecord `json:"diagram" yaml:"diagram"`
}

// Empty reports whether the payload carries no detail at all.
func (d *DetailPayload) Empty() bool {
	if d == nil {
		return true
	}
	return d.Summary == "" && len(d.Insights) == 0 && d.Notes == "" &&
		len(d.CodeLinks) == 0 && len(d.Formulas) == 0 &&
		len(d.Algorithms) == 0 && d.Diagram == nil
}

// AnalysisResult is the outcome of one orchestrator pass over one paper.
// It is consumed immediately to update the ledger and never persisted
// directly.
type AnalysisResult struct {
	// Tags are classification labels, a non-empty subset of KnownTags.
	Tags []string `json:"tags" yaml:"tags"`

	// Confidence is low, medium, or high.
	Confidence string `json:"confidence" yaml:"confidence"`

	// Score is the analysis score clamped to [1,10].
	Score int `json:"score" yaml:"score"`

	// ScoreRationale explains the score.
	ScoreRationale string `json:"score_rationale" yaml:"score_rationale"`

	// Detail is the optional deep-analysis payload.
	Detail *DetailPayload `json:"detail,omitempty" yaml:"detail,omitempty"`

	// Degraded marks a result recovered by partial-field extraction after
	// both strict parsing and structural repair failed.
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`

	// Depth is the analysis depth actually achieved by the run.
	Depth Depth `json:"depth" yaml:"depth"`
}
