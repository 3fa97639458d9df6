// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// mainFilePatterns are conventional main-document names, checked first.
var mainFilePatterns = []string{
	"main.tex",
	"paper.tex",
	"ms.tex",
	"article.tex",
	"manuscript.tex",
	"arxiv.tex",
}

// includeRe matches \input{name} and \include{name} directives.
var includeRe = regexp.MustCompile(`\\(?:input|include)\{([^}]+)\}`)

const (
	maxExpansions     = 100
	maxExpansionDepth = 50
)

// pickMainFile identifies the main document among the archive's text
// files: known main-filename patterns first, then the first file carrying
// a document-root marker, then any file at all.
func pickMainFile(files map[string]string) string {
	for _, pattern := range mainFilePatterns {
		for name := range files {
			if strings.EqualFold(baseName(name), pattern) {
				return name
			}
		}
	}

	// Prefer deterministic order so repeated runs flatten identically.
	for _, name := range sortedNames(files) {
		if strings.Contains(files[name], "\\documentclass") ||
			strings.Contains(files[name], "\\begin{document}") {
			return name
		}
	}

	return sortedNames(files)[0]
}

// expandIncludes substitutes referenced files' content in place of
// \input/\include directives in the main document. Already-expanded files
// are not expanded again, which breaks inclusion cycles; total expansions
// and recursion depth are capped. Unresolved references become inline
// marker comments instead of failing the flatten.
func expandIncludes(main string, files map[string]string) string {
	seen := make(map[string]bool)
	expansions := 0

	var expand func(content string, depth int) string
	expand = func(content string, depth int) string {
		if depth > maxExpansionDepth {
			return content
		}
		return includeRe.ReplaceAllStringFunc(content, func(directive string) string {
			ref := includeRe.FindStringSubmatch(directive)[1]
			name, ok := resolveInclude(ref, files)
			if !ok {
				return fmt.Sprintf("%% [unresolved include: %s]", ref)
			}
			if seen[name] || expansions >= maxExpansions {
				return fmt.Sprintf("%% [already included: %s]", ref)
			}
			seen[name] = true
			expansions++
			return expand(files[name], depth+1)
		})
	}

	return expand(main, 0)
}

// resolveInclude maps an \input reference to an archive file name, trying
// the name as written and with a .tex suffix.
func resolveInclude(ref string, files map[string]string) (string, bool) {
	candidates := []string{ref, ref + ".tex"}
	for _, c := range candidates {
		if _, ok := files[c]; ok {
			return c, true
		}
		// Directives sometimes use paths relative to a subdirectory.
		for name := range files {
			if baseName(name) == baseName(c) && strings.HasSuffix(name, c) {
				return name, true
			}
		}
	}
	return "", false
}

func baseName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
