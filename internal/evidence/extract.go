// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evidence slices a flattened source document into the text that
// grounds a completion call, per requested analysis depth.
package evidence

import (
	"regexp"
	"strings"

	"github.com/pillumina/PaperFuse/pkg/types"
)

const (
	// maxChars is the hard ceiling on any evidence slice.
	maxChars = 150000

	// fallbackChars is the leading-excerpt size used when no
	// introduction or conclusion section can be located.
	fallbackChars = 3000
)

// TruncationMarker is appended when an evidence slice is cut at the ceiling.
const TruncationMarker = "\n\n[evidence truncated]"

// FallbackMarker precedes a leading excerpt used in place of missing
// introduction/conclusion sections.
const FallbackMarker = "[no introduction or conclusion located; leading excerpt follows]\n\n"

var (
	commentRe = regexp.MustCompile(`(?m)(^|[^\\])%.*$`)
	citeRe    = regexp.MustCompile(`\\(?:cite|citet|citep|citealp|citeauthor)\*?(?:\[[^\]]*\])?\{[^}]*\}`)
	refRe     = regexp.MustCompile(`\\(?:ref|eqref|autoref|cref|Cref|pageref)\{[^}]*\}`)
	figureRe  = regexp.MustCompile(`(?s)\\begin\{(figure|table|tabular|algorithm2e)\*?\}.*?\\end\{(figure|table|tabular|algorithm2e)\*?\}`)
	sectionRe = regexp.MustCompile(`\\(?:section|chapter)\*?\{([^}]*)\}`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// introPatterns and concludePatterns are heading substrings in priority
// order; earlier entries win when several headings match.
var introPatterns = []string{"introduction", "overview", "motivation", "background"}

var concludePatterns = []string{"conclusion", "concluding remarks", "discussion", "summary", "future work"}

// Clean strips non-semantic markup from a flattened document: TeX
// comments, citation and reference macros (collapsed to placeholder
// tokens), and figure/table environments (collapsed to placeholders).
func Clean(doc string) string {
	doc = commentRe.ReplaceAllString(doc, "$1")
	doc = figureRe.ReplaceAllString(doc, "[FIGURE]")
	doc = citeRe.ReplaceAllString(doc, "[CITATION]")
	doc = refRe.ReplaceAllString(doc, "[REF]")
	doc = blankRe.ReplaceAllString(doc, "\n\n")
	return strings.TrimSpace(doc)
}

// ByDepth returns the cleaned evidence slice for the requested depth.
// Basic depth needs no source text at all (callers use the raw abstract),
// standard wants introduction plus conclusion, full wants everything.
// All non-empty outputs respect the hard length ceiling.
func ByDepth(doc string, depth types.Depth) string {
	switch depth {
	case types.DepthNone, types.DepthBasic:
		return ""
	case types.DepthStandard:
		return truncateAtSentence(introAndConclusion(Clean(doc)), maxChars)
	default:
		return truncateAtSentence(Clean(doc), maxChars)
	}
}

// introAndConclusion locates the introduction and conclusion/discussion
// sections and concatenates them. When neither is found it falls back to
// a marked leading excerpt of the cleaned document.
func introAndConclusion(cleaned string) string {
	sections := splitSections(cleaned)

	intro := pickSection(sections, introPatterns)
	conclusion := pickSection(sections, concludePatterns)

	if intro == "" && conclusion == "" {
		excerpt := cleaned
		if len(excerpt) > fallbackChars {
			excerpt = truncateAtSentence(excerpt, fallbackChars)
		}
		return FallbackMarker + excerpt
	}

	switch {
	case conclusion == "":
		return intro
	case intro == "":
		return conclusion
	}
	return intro + "\n\n" + conclusion
}

// docSection is one heading-delimited span of the document.
type docSection struct {
	heading string
	body    string
}

// splitSections cuts the document at \section/\chapter boundaries. The
// body of each section includes its heading line.
func splitSections(doc string) []docSection {
	matches := sectionRe.FindAllStringSubmatchIndex(doc, -1)
	var sections []docSection
	for i, m := range matches {
		end := len(doc)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		heading := strings.ToLower(strings.TrimSpace(doc[m[2]:m[3]]))
		sections = append(sections, docSection{
			heading: heading,
			body:    strings.TrimSpace(doc[m[0]:end]),
		})
	}
	return sections
}

// pickSection returns the first section whose heading matches the
// highest-priority pattern.
func pickSection(sections []docSection, patterns []string) string {
	for _, pattern := range patterns {
		for _, sec := range sections {
			if strings.Contains(sec.heading, pattern) {
				return sec.body
			}
		}
	}
	return ""
}

// truncateAtSentence caps s at limit characters, preferring to cut at the
// last full sentence before the limit, and annotates the cut with a
// trailing marker rather than ending silently.
func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := lastSentenceEnd(cut); idx > 0 {
		cut = cut[:idx]
	}
	return cut + TruncationMarker
}

// lastSentenceEnd finds the index just past the final sentence terminator.
func lastSentenceEnd(s string) int {
	best := -1
	for _, term := range []string{". ", ".\n", "! ", "? ", "!\n", "?\n"} {
		if idx := strings.LastIndex(s, term); idx >= 0 && idx+1 > best {
			best = idx + 1
		}
	}
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return len(s)
	}
	return best
}
