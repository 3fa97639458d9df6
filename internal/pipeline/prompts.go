// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pillumina/PaperFuse/pkg/types"
)

// systemPrompt frames every completion call. The closed tag set is
// injected so the provider never invents labels the reconciler would
// drop.
var systemPrompt = `You are an expert reviewer of machine learning preprints. You assess relevance and technical depth for a practicing research engineer. Respond with a single JSON object and no text outside it.`

// basicPromptTmpl requests a lightweight read of the abstract alone:
// classification, a score, a short summary and brief notes.
var basicPromptTmpl = template.Must(template.New("basic").Parse(`Assess the following paper from its abstract alone.

Title: {{.Title}}
Authors: {{.Authors}}
Categories: {{.Categories}}

Abstract:
{{.Abstract}}

Respond with a JSON object with these fields:
- "score": integer 1-10, how valuable this paper is to a research engineer
- "score_rationale": one sentence justifying the score
- "tags": array of labels drawn only from: {{.Tags}}
- "confidence": "low", "medium", or "high"
- "detail": {"summary": two or three sentences, "notes": one short practical note}
`))

// scoringPromptTmpl is the phase-1 triage call for standard depth. It
// sees the introduction and conclusion and asks only for an assessment,
// no detail payload.
var scoringPromptTmpl = template.Must(template.New("scoring").Parse(`Triage the following paper. You are given its abstract plus the introduction and conclusion sections extracted from the source.

Title: {{.Title}}
Categories: {{.Categories}}

Abstract:
{{.Abstract}}

Extracted sections:
{{.Evidence}}

Respond with a JSON object with these fields:
- "score": integer 1-10, how valuable this paper is to a research engineer
- "score_rationale": one sentence justifying the score
- "tags": array of labels drawn only from: {{.Tags}}
- "confidence": "low", "medium", or "high"
`))

// detailPromptTmpl is the phase-2 / full-depth call. It sees the whole
// cleaned source and requests the complete detail payload. At full depth
// the provider decides from its own score whether the detail fields are
// worth populating.
var detailPromptTmpl = template.Must(template.New("detail").Parse(`Analyze the following paper in depth using its full source text.

Title: {{.Title}}
Authors: {{.Authors}}
Categories: {{.Categories}}

Abstract:
{{.Abstract}}

Full text:
{{.Evidence}}

Respond with a JSON object with these fields:
- "score": integer 1-10, how valuable this paper is to a research engineer
- "score_rationale": one sentence justifying the score
- "tags": array of labels drawn only from: {{.Tags}}
- "confidence": "low", "medium", or "high"
- "detail": an object with:
  - "summary": a thorough summary, four to six sentences
  - "insights": array of concrete takeaways
  - "notes": practical notes on applying the work
  - "code_links": array of URLs to runnable code mentioned in the text, or []
  - "formulas": array of {"name", "latex", "explanation"} for the key formulas
  - "algorithms": array of {"name", "description", "steps"} for the key algorithms
  - "diagram": {"title", "definition"} with a mermaid flowchart of the method, or null
{{if .ScoreGated}}
Populate "formulas", "algorithms", and "diagram" only when your score is 7 or higher; otherwise set them to [] and null.
{{end}}`))

type promptData struct {
	Title      string
	Authors    string
	Categories string
	Abstract   string
	Evidence   string
	Tags       string
	ScoreGated bool
}

func newPromptData(p *types.Paper) promptData {
	return promptData{
		Title:      p.Title,
		Authors:    strings.Join(p.Authors, ", "),
		Categories: strings.Join(p.Categories, ", "),
		Abstract:   p.Abstract,
		Tags:       strings.Join(types.KnownTags, ", "),
	}
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
