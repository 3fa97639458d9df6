// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Depth is how much evidence and analysis effort has been applied to a
// paper. The ordering none < basic < standard < full is significant: a
// stored depth may only move toward full, never backward.
type Depth int

const (
	DepthNone Depth = iota
	DepthBasic
	DepthStandard
	DepthFull
)

var depthNames = map[Depth]string{
	DepthNone:     "none",
	DepthBasic:    "basic",
	DepthStandard: "standard",
	DepthFull:     "full",
}

// String returns the canonical name of the depth.
func (d Depth) String() string {
	if name, ok := depthNames[d]; ok {
		return name
	}
	return fmt.Sprintf("depth(%d)", int(d))
}

// ParseDepth converts a depth name to a Depth. Unknown names are an error.
func ParseDepth(s string) (Depth, error) {
	for d, name := range depthNames {
		if name == s {
			return d, nil
		}
	}
	return DepthNone, fmt.Errorf("unknown analysis depth %q", s)
}

// MarshalJSON encodes the depth as its name.
func (d Depth) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a depth name. An empty string maps to none.
func (d *Depth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = DepthNone
		return nil
	}
	parsed, err := ParseDepth(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML encodes the depth as its name.
func (d Depth) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML decodes a depth name.
func (d *Depth) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = DepthNone
		return nil
	}
	parsed, err := ParseDepth(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FormulaRecord is a notable formula surfaced during deep analysis.
type FormulaRecord struct {
	// Name is a short label for the formula (e.g. "attention score").
	Name string `json:"name" yaml:"name"`

	// Latex is the formula in LaTeX notation.
	Latex string `json:"latex" yaml:"latex"`

	// Explanation describes what the formula computes and why it matters.
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// AlgorithmRecord is a notable algorithm or procedure from a paper.
type AlgorithmRecord struct {
	// Name is the algorithm's label as given in the paper.
	Name string `json:"name" yaml:"name"`

	// Description summarizes what the algorithm does.
	Description string `json:"description" yaml:"description"`

	// Steps lists the main steps in order.
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// DiagramRecord is a flow diagram describing a paper's core pipeline.
type DiagramRecord struct {
	// Title labels the diagram.
	Title string `json:"title" yaml:"title"`

	// Definition is the diagram body in Mermaid flowchart syntax.
	Definition string `json:"definition" yaml:"definition"`
}

// Paper holds metadata and accumulated analysis state for one preprint.
// The identity is the normalized external identifier with any version
// suffix stripped (e.g. "2301.07041", not "2301.07041v2").
type Paper struct {
	// ID is the normalized external identifier.
	ID string `json:"id" yaml:"id"`

	// RawID is the identifier as published, version suffix intact
	// (e.g. "2301.07041v2"). Empty for records loaded from storage.
	RawID string `json:"raw_id,omitempty" yaml:"raw_id,omitempty"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the raw abstract as provided by the metadata source.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Categories lists the subject classification labels.
	Categories []string `json:"categories" yaml:"categories"`

	// Published is the first publication date.
	Published time.Time `json:"published" yaml:"published"`

	// Updated is the most recent revision date.
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	// Score is the analysis score in [1,10]; 0 means not yet scored.
	Score int `json:"score,omitempty" yaml:"score,omitempty"`

	// ScoreRationale explains the score.
	ScoreRationale string `json:"score_rationale,omitempty" yaml:"score_rationale,omitempty"`

	// Tags are classification labels drawn from the known tag set.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Confidence is the analysis confidence level: low, medium, or high.
	Confidence string `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// Summary is a free-text summary of the paper.
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`

	// Insights are bullet takeaways from the analysis.
	Insights []string `json:"insights,omitempty" yaml:"insights,omitempty"`

	// Notes are free-text engineering notes.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// CodeLinks are validated links to runnable code resources.
	CodeLinks []string `json:"code_links,omitempty" yaml:"code_links,omitempty"`

	// Formulas are notable formulas found during deep analysis.
	Formulas []FormulaRecord `json:"formulas,omitempty" yaml:"formulas,omitempty"`

	// Algorithms are notable algorithms found during deep analysis.
	Algorithms []AlgorithmRecord `json:"algorithms,omitempty" yaml:"algorithms,omitempty"`

	// Diagram is an optional flow diagram of the paper's approach.
	Diagram *DiagramRecord `json:"diagram,omitempty" yaml:"diagram,omitempty"`

	// DeepAnalyzed reports whether detail extraction has been performed.
	DeepAnalyzed bool `json:"deep_analyzed" yaml:"deep_analyzed"`

	// Depth is the analysis depth achieved so far. Monotonically
	// non-decreasing across updates to the same paper.
	Depth Depth `json:"depth" yaml:"depth"`

	// AnalyzedAt is when the most recent analysis completed.
	AnalyzedAt time.Time `json:"analyzed_at,omitempty" yaml:"analyzed_at,omitempty"`
}

// Analyzed reports whether any analysis has been recorded.
func (p *Paper) Analyzed() bool {
	return p.Depth > DepthNone
}
