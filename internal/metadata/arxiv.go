// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata retrieves paper metadata records from the arXiv API.
package metadata

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pillumina/PaperFuse/internal/httputil"
	"github.com/pillumina/PaperFuse/pkg/types"
)

// arxivAPIBase is the arXiv query endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ErrNotFound is returned when a requested identifier has no metadata record.
var ErrNotFound = fmt.Errorf("paper not found")

// Source queries the arXiv API for paper metadata.
type Source struct {
	Client *http.Client
	Config types.MetadataConfig
}

// NewSource builds a metadata source with a timeout-configured HTTP client.
func NewSource(cfg types.MetadataConfig) *Source {
	return &Source{
		Client: &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
	}
}

// List returns metadata records for papers in the given categories
// submitted within the lookback window, most recent first.
func (s *Source) List(ctx context.Context, categories []string, lookback time.Duration) ([]types.Paper, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories given")
	}

	var catTerms []string
	for _, c := range categories {
		catTerms = append(catTerms, "cat:"+c)
	}
	query := strings.Join(catTerms, "+OR+")

	maxResults := s.Config.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	url := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=submittedDate&sortOrder=descending",
		arxivAPIBase, query, maxResults)

	feed, err := s.fetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-lookback)
	var papers []types.Paper
	for _, entry := range feed.Entries {
		p, ok := entryToPaper(entry)
		if !ok {
			continue
		}
		if lookback > 0 && p.Published.Before(cutoff) {
			continue
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// Get returns the metadata record for a single identifier, or ErrNotFound.
func (s *Source) Get(ctx context.Context, id string) (*types.Paper, error) {
	url := fmt.Sprintf("%s?id_list=%s", arxivAPIBase, NormalizeID(id))

	feed, err := s.fetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, ErrNotFound
	}

	p, ok := entryToPaper(feed.Entries[0])
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *Source) fetchFeed(ctx context.Context, url string) (*arxivFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.Config.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return &feed, nil
}

func entryToPaper(entry arxivEntry) (types.Paper, bool) {
	raw := extractArxivID(entry.ID)
	if raw == "" {
		return types.Paper{}, false
	}

	p := types.Paper{
		ID:       NormalizeID(raw),
		RawID:    raw,
		Title:    collapseWhitespace(entry.Title),
		Abstract: collapseWhitespace(entry.Summary),
	}

	for _, a := range entry.Authors {
		p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
	}
	for _, c := range entry.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}

	if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
		p.Published = t
	}
	if t, parseErr := time.Parse(time.RFC3339, entry.Updated); parseErr == nil {
		p.Updated = t
	}
	return p, true
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Updated    string          `xml:"updated"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL, version
// suffix included (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041v1").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(idURL[idx+len(prefix):])
}

// NormalizeID strips the version suffix from an arXiv identifier
// (e.g. "2301.07041v2" → "2301.07041"). Identifiers without a version
// pass through unchanged.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			return id[:vIdx]
		}
	}
	return id
}

// Version returns the numeric version suffix of an identifier, or 0 when
// none is present.
func Version(id string) int {
	id = strings.TrimSpace(id)
	vIdx := strings.LastIndex(id, "v")
	if vIdx <= 0 {
		return 0
	}
	v, err := strconv.Atoi(id[vIdx+1:])
	if err != nil {
		return 0
	}
	return v
}

// collapseWhitespace folds newlines and runs of spaces in Atom text fields
// into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
