// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile recovers a structured analysis result from the
// completion service's unreliable free-text output.
//
// Parsing escalates through three tiers: strict parse of the extracted
// JSON span, structural repair of truncation artifacts, and finally
// regex salvage of just the core fields with the result marked degraded.
package reconcile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pillumina/PaperFuse/pkg/types"
)

// detailFields is the detail half of the wire shape, nested under
// "detail" in a compliant response.
type detailFields struct {
	Summary    string                  `json:"summary"`
	Insights   []string                `json:"insights"`
	Notes      string                  `json:"notes"`
	CodeLinks  []string                `json:"code_links"`
	Formulas   []types.FormulaRecord   `json:"formulas"`
	Algorithms []types.AlgorithmRecord `json:"algorithms"`
	Diagram    *types.DiagramRecord    `json:"diagram"`
}

// payload is the wire shape the completion service is instructed to
// emit. Detail fields arrive nested under "detail"; the embedded flat
// copies accept responses that hoist them to the top level instead.
type payload struct {
	Tags           []string      `json:"tags"`
	Confidence     string        `json:"confidence"`
	Score          *float64      `json:"score"`
	ScoreRationale string        `json:"score_rationale"`
	Detail         *detailFields `json:"detail"`

	detailFields
}

// detail combines the nested and flat detail fields, preferring the
// nested object where both carry a value.
func (p *payload) detail() detailFields {
	d := p.detailFields
	if n := p.Detail; n != nil {
		if n.Summary != "" {
			d.Summary = n.Summary
		}
		if len(n.Insights) > 0 {
			d.Insights = n.Insights
		}
		if n.Notes != "" {
			d.Notes = n.Notes
		}
		if len(n.CodeLinks) > 0 {
			d.CodeLinks = n.CodeLinks
		}
		if len(n.Formulas) > 0 {
			d.Formulas = n.Formulas
		}
		if len(n.Algorithms) > 0 {
			d.Algorithms = n.Algorithms
		}
		if n.Diagram != nil {
			d.Diagram = n.Diagram
		}
	}
	return d
}

// Reconcile parses raw completion output into a normalized result. It
// only fails when even degraded salvage finds nothing usable.
func Reconcile(raw string) (*types.AnalysisResult, error) {
	candidate := extractCandidate(raw)

	// Tier 1: strict parse.
	var p payload
	if err := json.Unmarshal([]byte(candidate), &p); err == nil {
		return normalize(&p, false), nil
	}

	// Tier 2: structural repair, then reparse.
	repaired := RepairJSON(candidate)
	if err := json.Unmarshal([]byte(repaired), &p); err == nil {
		return normalize(&p, false), nil
	}

	// Tier 3: regex salvage of score, tags, and confidence only.
	salvaged, ok := salvage(raw)
	if !ok {
		return nil, fmt.Errorf("unparseable completion output")
	}
	return normalize(salvaged, true), nil
}

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractCandidate locates the JSON span in the raw output: a fenced
// code block first, then the outermost brace span. Output truncated
// before its closing brace keeps everything from the first opener on.
func extractCandidate(raw string) string {
	raw = strings.TrimSpace(raw)

	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}

	// A fence that was itself truncated before the closing backticks.
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		rest = strings.TrimPrefix(strings.TrimLeft(rest, " \t\r\n"), "json")
		if open := strings.Index(rest, "{"); open >= 0 {
			raw = rest[open:]
		}
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return raw
	}
	end := strings.LastIndex(raw, "}")
	if end > start {
		return raw[start : end+1]
	}
	return raw[start:]
}

// RepairJSON fixes common truncation artifacts: an unterminated final
// string is soft-closed, a dangling key gets a null value, trailing
// commas before closers are stripped, and missing closing braces and
// brackets are appended from the counted imbalance.
func RepairJSON(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// Soft-close a string cut off mid-value.
	if inString {
		s += `"`
	}

	trimmed := strings.TrimRight(s, " \t\r\n")

	// A key with no value at the cut point.
	if strings.HasSuffix(trimmed, ":") {
		trimmed += "null"
	}

	// Trailing comma before the closers we are about to append.
	trimmed = strings.TrimRight(trimmed, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ",")

	// Close the counted imbalance innermost-first.
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			trimmed += "}"
		} else {
			trimmed += "]"
		}
	}

	return stripTrailingCommas(trimmed)
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// stripTrailingCommas removes commas sitting directly before a closer.
func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

var (
	scoreRe      = regexp.MustCompile(`"score"\s*:\s*(\d+(?:\.\d+)?)`)
	tagsRe       = regexp.MustCompile(`"tags"\s*:\s*\[([^\]]*)`)
	quotedRe     = regexp.MustCompile(`"([^"]*)"`)
	confidenceRe = regexp.MustCompile(`"confidence"\s*:\s*"(\w+)"`)
)

// salvage pulls score, tags, and confidence out of otherwise unparseable
// output. Detail fields are discarded; the caller marks the result
// degraded.
func salvage(raw string) (*payload, bool) {
	p := &payload{}
	found := false

	if m := scoreRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.Score = &v
			found = true
		}
	}
	if m := tagsRe.FindStringSubmatch(raw); m != nil {
		for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
			p.Tags = append(p.Tags, q[1])
		}
		if len(p.Tags) > 0 {
			found = true
		}
	}
	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		p.Confidence = m[1]
		found = true
	}

	return p, found
}

// knownTagSet is KnownTags as a lookup set.
var knownTagSet = func() map[string]bool {
	set := make(map[string]bool, len(types.KnownTags))
	for _, t := range types.KnownTags {
		set[t] = true
	}
	return set
}()

// normalize applies the invariants every reconciled result satisfies:
// tags are a non-empty subset of the known tag set, the score is clamped
// to [1,10], confidence is a known level, and code links are validated.
func normalize(p *payload, degraded bool) *types.AnalysisResult {
	result := &types.AnalysisResult{
		Score:          clampScore(p.Score),
		ScoreRationale: strings.TrimSpace(p.ScoreRationale),
		Degraded:       degraded,
	}

	for _, tag := range p.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if knownTagSet[tag] {
			result.Tags = append(result.Tags, tag)
		}
	}
	if len(result.Tags) == 0 {
		result.Tags = []string{types.FallbackTag}
	}

	switch strings.ToLower(strings.TrimSpace(p.Confidence)) {
	case types.ConfidenceLow:
		result.Confidence = types.ConfidenceLow
	case types.ConfidenceHigh:
		result.Confidence = types.ConfidenceHigh
	case types.ConfidenceMedium:
		result.Confidence = types.ConfidenceMedium
	default:
		result.Confidence = types.ConfidenceMedium
	}
	if degraded {
		result.Confidence = types.ConfidenceLow
	}

	d := p.detail()
	detail := &types.DetailPayload{
		Summary:    strings.TrimSpace(d.Summary),
		Insights:   d.Insights,
		Notes:      strings.TrimSpace(d.Notes),
		CodeLinks:  ValidateCodeLinks(d.CodeLinks),
		Formulas:   d.Formulas,
		Algorithms: d.Algorithms,
		Diagram:    d.Diagram,
	}
	if !detail.Empty() {
		result.Detail = detail
	}

	return result
}

// clampScore rounds and clamps a raw score into [1,10]. An absent score
// stays absent (0) so basic-depth runs can keep the heuristic base score.
func clampScore(raw *float64) int {
	if raw == nil {
		return 0
	}
	score := int(*raw + 0.5)
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
