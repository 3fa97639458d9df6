// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source acquires a paper's e-print source archive and flattens
// it into a single document for evidence extraction.
package source

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/pillumina/PaperFuse/internal/httputil"
	"github.com/pillumina/PaperFuse/internal/metadata"
	"github.com/pillumina/PaperFuse/pkg/types"
)

// archiveBase is the e-print archive endpoint. Declared as a var so tests
// can substitute an httptest server.
var archiveBase = "https://arxiv.org/e-print/"

// ErrSourceUnavailable marks a paper whose source archive is missing or
// in a format we cannot read. Callers fall back to abstract-only evidence.
var ErrSourceUnavailable = errors.New("source unavailable")

// maxArchiveBytes caps how much of an archive member is read, as a
// safety valve against hostile archives.
const maxArchiveBytes = 50 << 20

// textExtensions are the file suffixes treated as text-bearing.
var textExtensions = []string{".tex", ".ltx", ".sty", ".cls", ".bbl", ".txt"}

// Fetcher downloads and flattens source archives.
type Fetcher struct {
	Client *http.Client
	Config types.SourceConfig
}

// NewFetcher builds a fetcher with a timeout-configured HTTP client.
func NewFetcher(cfg types.SourceConfig) *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
	}
}

// FetchFlattened downloads the source archive for the given paper id,
// extracts its text files, and resolves inclusion directives into one
// flattened document. A missing archive or unrecognized format returns
// ErrSourceUnavailable.
func (f *Fetcher) FetchFlattened(ctx context.Context, id string) (string, error) {
	raw, err := f.download(ctx, metadata.NormalizeID(id))
	if err != nil {
		return "", err
	}
	return Flatten(raw)
}

func (f *Fetcher) download(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveBase+id, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.Config.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no archive for %s: %w", id, ErrSourceUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive host returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return data, nil
}

// Flatten decodes an archive (gzip-tar, zip, gzipped single file, or a
// bare text file, auto-detected by magic bytes), locates the main
// document, and expands inclusion directives in place.
func Flatten(raw []byte) (string, error) {
	files, err := extractFiles(raw)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("archive contains no text files: %w", ErrSourceUnavailable)
	}

	main := pickMainFile(files)
	return expandIncludes(files[main], files), nil
}

// extractFiles decodes the archive into a map of file name to content.
func extractFiles(raw []byte) (map[string]string, error) {
	switch {
	case len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b:
		return extractGzip(raw)
	case len(raw) >= 4 && bytes.HasPrefix(raw, []byte("PK\x03\x04")):
		return extractZip(raw)
	case looksLikeTeX(raw):
		// A bare, uncompressed TeX file.
		return map[string]string{"main.tex": string(raw)}, nil
	}
	return nil, fmt.Errorf("unrecognized archive format: %w", ErrSourceUnavailable)
}

func extractGzip(raw []byte) (map[string]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip decode: %w", ErrSourceUnavailable)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gz, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", ErrSourceUnavailable)
	}

	// Most archives are gzipped tarballs, but single gzipped TeX files
	// also occur for short papers.
	if files, err := extractTar(decompressed); err == nil {
		return files, nil
	}
	if looksLikeTeX(decompressed) {
		return map[string]string{"main.tex": string(decompressed)}, nil
	}
	return nil, fmt.Errorf("gzip payload is neither tar nor text: %w", ErrSourceUnavailable)
}

func extractTar(raw []byte) (map[string]string, error) {
	files := make(map[string]string)
	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar decode: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !isTextFile(hdr.Name) {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxArchiveBytes))
		if err != nil {
			return nil, fmt.Errorf("tar read %s: %w", hdr.Name, err)
		}
		files[path.Clean(hdr.Name)] = string(content)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("tar contains no text files")
	}
	return files, nil
}

func extractZip(raw []byte) (map[string]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("zip decode: %w", ErrSourceUnavailable)
	}

	files := make(map[string]string)
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !isTextFile(zf.Name) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("zip open %s: %w", zf.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip read %s: %w", zf.Name, err)
		}
		files[path.Clean(zf.Name)] = string(content)
	}
	return files, nil
}

func isTextFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range textExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// looksLikeTeX guesses whether raw bytes are a TeX document.
func looksLikeTeX(raw []byte) bool {
	head := raw
	if len(head) > 2048 {
		head = head[:2048]
	}
	return bytes.Contains(head, []byte("\\documentclass")) ||
		bytes.Contains(head, []byte("\\begin{document}")) ||
		bytes.HasPrefix(bytes.TrimSpace(head), []byte("%"))
}
