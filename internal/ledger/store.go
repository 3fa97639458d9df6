// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists per-paper analysis state and enforces the
// upgrade-only depth transition rule across repeated runs.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pillumina/PaperFuse/pkg/types"
)

const dbFile = "paperfuse.db"

// ErrNotFound is returned when no paper matches the requested identifier.
var ErrNotFound = errors.New("paper not found in ledger")

// Store manages the analysis ledger SQLite database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// Open opens or creates the ledger database at dataDir/paperfuse.db and
// creates the schema if it does not exist.
func Open(cfg types.LedgerConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	s := &Store{db: db, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			title TEXT,
			authors TEXT,
			abstract TEXT,
			categories TEXT,
			published TEXT,
			updated TEXT,
			score INTEGER DEFAULT 0,
			score_rationale TEXT,
			tags TEXT,
			confidence TEXT,
			summary TEXT,
			insights TEXT,
			notes TEXT,
			code_links TEXT,
			formulas TEXT,
			algorithms TEXT,
			diagram TEXT,
			deep_analyzed INTEGER DEFAULT 0,
			depth TEXT NOT NULL DEFAULT 'none',
			analyzed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_score ON papers(score)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_depth ON papers(depth)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE papers_fts USING fts5(title, abstract, summary, content=papers, content_rowid=rowid)`,
			`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
				INSERT INTO papers_fts(rowid, title, abstract, summary) VALUES (new.rowid, new.title, new.abstract, new.summary);
			END`,
			`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, abstract, summary) VALUES('delete', old.rowid, old.title, old.abstract, old.summary);
			END`,
			`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, abstract, summary) VALUES('delete', old.rowid, old.title, old.abstract, old.summary);
				INSERT INTO papers_fts(rowid, title, abstract, summary) VALUES (new.rowid, new.title, new.abstract, new.summary);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Eligible reports whether a paper may be processed at the target depth.
// A paper at full is never reprocessed by a lower request; standard is
// only reprocessed by full; basic and unanalyzed papers accept any depth.
// Force overrides eligibility entirely (the stored depth still never
// regresses when the result lands).
func (s *Store) Eligible(ctx context.Context, id string, target types.Depth, force bool) (bool, error) {
	if force {
		return true, nil
	}
	p, err := s.GetByExternalID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	switch p.Depth {
	case types.DepthFull:
		return false, nil
	case types.DepthStandard:
		return target == types.DepthFull, nil
	}
	return true, nil
}

// GetByExternalID returns the paper with the given normalized external id.
func (s *Store) GetByExternalID(ctx context.Context, id string) (*types.Paper, error) {
	return s.getWhere(ctx, "id = ?", id)
}

// Get returns the paper with the given internal uid.
func (s *Store) Get(ctx context.Context, uid string) (*types.Paper, error) {
	return s.getWhere(ctx, "uid = ?", uid)
}

const paperColumns = `id, uid, title, authors, abstract, categories, published, updated,
	score, score_rationale, tags, confidence, summary, insights, notes,
	code_links, formulas, algorithms, diagram, deep_analyzed, depth, analyzed_at`

func (s *Store) getWhere(ctx context.Context, where string, arg any) (*types.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE `+where, arg)
	p, _, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert records a paper's current state, inserting it on first sight.
// Callers go through Apply for analysis updates; Upsert alone is for
// metadata-only writes.
func (s *Store) Upsert(ctx context.Context, p *types.Paper) error {
	return s.write(ctx, p)
}

// Apply merges one analysis result into the stored record for the paper,
// inserting the paper if it is new. The stored depth never decreases and
// fields recorded at a higher depth are never discarded.
func (s *Store) Apply(ctx context.Context, meta *types.Paper, result *types.AnalysisResult) (*types.Paper, error) {
	existing, err := s.GetByExternalID(ctx, meta.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	merged := Merge(existing, meta, result, time.Now().UTC())
	if err := s.write(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) write(ctx context.Context, p *types.Paper) error {
	var uid string
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM papers WHERE id = ?`, p.ID).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		uid = uuid.NewString()
	} else if err != nil {
		return fmt.Errorf("looking up paper %s: %w", p.ID, err)
	}

	authors, _ := json.Marshal(p.Authors)
	categories, _ := json.Marshal(p.Categories)
	tags, _ := json.Marshal(p.Tags)
	insights, _ := json.Marshal(p.Insights)
	codeLinks, _ := json.Marshal(p.CodeLinks)
	formulas, _ := json.Marshal(p.Formulas)
	algorithms, _ := json.Marshal(p.Algorithms)
	diagram := ""
	if p.Diagram != nil {
		d, _ := json.Marshal(p.Diagram)
		diagram = string(d)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO papers (`+paperColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, authors=excluded.authors, abstract=excluded.abstract,
			categories=excluded.categories, published=excluded.published, updated=excluded.updated,
			score=excluded.score, score_rationale=excluded.score_rationale,
			tags=excluded.tags, confidence=excluded.confidence, summary=excluded.summary,
			insights=excluded.insights, notes=excluded.notes, code_links=excluded.code_links,
			formulas=excluded.formulas, algorithms=excluded.algorithms, diagram=excluded.diagram,
			deep_analyzed=excluded.deep_analyzed, depth=excluded.depth, analyzed_at=excluded.analyzed_at`,
		p.ID, uid, p.Title, string(authors), p.Abstract, string(categories),
		timeString(p.Published), timeString(p.Updated),
		p.Score, p.ScoreRationale, string(tags), p.Confidence, p.Summary,
		string(insights), p.Notes, string(codeLinks), string(formulas),
		string(algorithms), diagram, boolInt(p.DeepAnalyzed), p.Depth.String(),
		timeString(p.AnalyzedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting paper %s: %w", p.ID, err)
	}
	return nil
}

// Filter selects papers for List.
type Filter struct {
	// Tag restricts results to papers carrying the tag.
	Tag string

	// MinScore is an inclusive score floor; 0 disables it.
	MinScore int

	// From and To bound the publication date; zero values disable them.
	From, To time.Time

	// Analyzed filters on whether any analysis depth has been recorded.
	Analyzed *bool

	// Search is a free-text query over title, abstract, and summary.
	Search string

	// Limit and Offset paginate; Limit 0 uses the store default.
	Limit, Offset int
}

// List returns papers matching the filter, newest publication first.
func (s *Store) List(ctx context.Context, f Filter) ([]types.Paper, error) {
	var conds []string
	var args []any

	if f.Search != "" {
		conds = append(conds, `rowid IN (SELECT rowid FROM papers_fts WHERE papers_fts MATCH ?)`)
		args = append(args, f.Search)
	}
	if f.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM json_each(tags) WHERE value = ?)`)
		args = append(args, f.Tag)
	}
	if f.MinScore > 0 {
		conds = append(conds, `score >= ?`)
		args = append(args, f.MinScore)
	}
	if !f.From.IsZero() {
		conds = append(conds, `published >= ?`)
		args = append(args, timeString(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, `published <= ?`)
		args = append(args, timeString(f.To))
	}
	if f.Analyzed != nil {
		if *f.Analyzed {
			conds = append(conds, `depth != 'none'`)
		} else {
			conds = append(conds, `depth = 'none'`)
		}
	}

	query := `SELECT ` + paperColumns + ` FROM papers`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY published DESC LIMIT ? OFFSET ?`

	limit := f.Limit
	if limit <= 0 {
		limit = s.maxResults
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		p, _, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *p)
	}
	return papers, rows.Err()
}

// Clear removes every paper. This is the only way analysis state is ever
// deleted.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM papers`); err != nil {
		return fmt.Errorf("clearing ledger: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (*types.Paper, string, error) {
	var p types.Paper
	var uid, authors, categories, tags, insights, codeLinks, formulas, algorithms, diagram string
	var published, updated, analyzedAt, depth string
	var deepAnalyzed int

	err := row.Scan(&p.ID, &uid, &p.Title, &authors, &p.Abstract, &categories,
		&published, &updated, &p.Score, &p.ScoreRationale, &tags, &p.Confidence,
		&p.Summary, &insights, &p.Notes, &codeLinks, &formulas, &algorithms,
		&diagram, &deepAnalyzed, &depth, &analyzedAt)
	if err != nil {
		return nil, "", err
	}

	json.Unmarshal([]byte(authors), &p.Authors)
	json.Unmarshal([]byte(categories), &p.Categories)
	json.Unmarshal([]byte(tags), &p.Tags)
	json.Unmarshal([]byte(insights), &p.Insights)
	json.Unmarshal([]byte(codeLinks), &p.CodeLinks)
	json.Unmarshal([]byte(formulas), &p.Formulas)
	json.Unmarshal([]byte(algorithms), &p.Algorithms)
	if diagram != "" {
		var d types.DiagramRecord
		if json.Unmarshal([]byte(diagram), &d) == nil {
			p.Diagram = &d
		}
	}

	p.DeepAnalyzed = deepAnalyzed != 0
	if d, err := types.ParseDepth(depth); err == nil {
		p.Depth = d
	}
	p.Published = parseTime(published)
	p.Updated = parseTime(updated)
	p.AnalyzedAt = parseTime(analyzedAt)

	return &p, uid, nil
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
