// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prefilter applies zero-cost deterministic checks to raw paper
// metadata before any evidence is acquired or tokens are spent.
package prefilter

import (
	"strings"

	"github.com/pillumina/PaperFuse/internal/metadata"
	"github.com/pillumina/PaperFuse/pkg/types"
)

const (
	minTitleLength    = 14
	minAbstractLength = 200
	maxVersion        = 5

	baseScoreDefault  = 5
	baseScoreTopVenue = 7
)

// titleBlacklist are low-signal words that disqualify a title outright.
var titleBlacklist = []string{
	"workshop",
	"draft",
	"thesis",
	"dissertation",
	"tutorial",
	"erratum",
	"comment on",
	"reply to",
}

// retractionMarkers indicate a withdrawn or retracted submission.
var retractionMarkers = []string{
	"this paper has been withdrawn",
	"this submission has been withdrawn",
	"has been retracted",
	"we retract",
	"withdrawn by the author",
}

// boilerplateMarkers indicate hiring or call-for-papers announcements
// masquerading as abstracts.
var boilerplateMarkers = []string{
	"call for papers",
	"we are hiring",
	"submission deadline",
	"postdoc position",
	"phd position",
}

// topVenueKeywords grant a higher heuristic base score when present in
// the title or abstract.
var topVenueKeywords = []string{
	"neurips",
	"icml",
	"iclr",
	"acl ",
	"cvpr",
	"eccv",
	"iccv",
	"state-of-the-art",
	"sota",
	"benchmark",
}

// Verdict is the outcome of prefiltering one paper. It is consumed once
// by the caller and never stored.
type Verdict struct {
	// Passed reports whether the paper survived all checks.
	Passed bool

	// Reason names the first failed check. Empty when Passed.
	Reason string

	// BaseScore is a heuristic starting score for papers that pass.
	BaseScore int
}

// Evaluate runs the deterministic checks in order; the first failure wins.
// It is a pure function of the metadata record.
func Evaluate(p *types.Paper, rawID string) Verdict {
	title := strings.ToLower(strings.TrimSpace(p.Title))
	abstract := strings.ToLower(strings.TrimSpace(p.Abstract))

	if len(p.Authors) == 0 {
		return reject("No authors listed")
	}
	for _, word := range titleBlacklist {
		if strings.Contains(title, word) {
			return reject("Low-signal title word: " + word)
		}
	}
	if len(title) < minTitleLength {
		return reject("Title too short")
	}
	if len(strings.TrimSpace(p.Abstract)) < minAbstractLength {
		return reject("Summary too short")
	}
	for _, marker := range retractionMarkers {
		if strings.Contains(abstract, marker) {
			return reject("Retracted or withdrawn")
		}
	}
	for _, marker := range boilerplateMarkers {
		if strings.Contains(abstract, marker) {
			return reject("Announcement boilerplate")
		}
	}
	if metadata.Version(rawID) > maxVersion {
		return reject("Too many revisions")
	}

	score := baseScoreDefault
	combined := title + " " + abstract
	for _, kw := range topVenueKeywords {
		if strings.Contains(combined, kw) {
			score = baseScoreTopVenue
			break
		}
	}

	return Verdict{Passed: true, BaseScore: score}
}

func reject(reason string) Verdict {
	return Verdict{Passed: false, Reason: reason}
}
