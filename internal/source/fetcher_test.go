// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillumina/PaperFuse/internal/httputil"
	"github.com/pillumina/PaperFuse/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// tarGz builds a gzipped tarball from name→content pairs.
func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// zipArchive builds a zip from name→content pairs.
func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFlatten_TarGzWithIncludes(t *testing.T) {
	raw := tarGz(t, map[string]string{
		"main.tex":       "\\documentclass{article}\n\\begin{document}\n\\input{intro}\n\\include{conclusion}\n\\end{document}",
		"intro.tex":      "Intro text.",
		"conclusion.tex": "Conclusion text.",
		"figure.png":     "binarypayload", // ignored: not text-bearing
	})

	doc, err := Flatten(raw)
	require.NoError(t, err)

	assert.Contains(t, doc, "Intro text.")
	assert.Contains(t, doc, "Conclusion text.")
	assert.NotContains(t, doc, "\\input{intro}")
}

func TestFlatten_Zip(t *testing.T) {
	raw := zipArchive(t, map[string]string{
		"paper.tex": "\\documentclass{article}\nZip body.",
	})

	doc, err := Flatten(raw)
	require.NoError(t, err)
	assert.Contains(t, doc, "Zip body.")
}

func TestFlatten_GzippedSingleFile(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("\\documentclass{article}\nSingle file body."))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	doc, err := Flatten(buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, doc, "Single file body.")
}

func TestFlatten_BareTeXFile(t *testing.T) {
	doc, err := Flatten([]byte("\\documentclass{article}\nBare body."))
	require.NoError(t, err)
	assert.Contains(t, doc, "Bare body.")
}

func TestFlatten_UnrecognizedFormat(t *testing.T) {
	_, err := Flatten([]byte{0x00, 0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFlatten_UnresolvedIncludeBecomesMarker(t *testing.T) {
	raw := tarGz(t, map[string]string{
		"main.tex": "\\begin{document}\n\\input{missing}\n\\end{document}",
	})

	doc, err := Flatten(raw)
	require.NoError(t, err)
	assert.Contains(t, doc, "% [unresolved include: missing]")
}

func TestFlatten_InclusionCycle(t *testing.T) {
	raw := tarGz(t, map[string]string{
		"main.tex": "\\documentclass{article}\n\\input{a}",
		"a.tex":    "A body \\input{b}",
		"b.tex":    "B body \\input{a}",
	})

	doc, err := Flatten(raw)
	require.NoError(t, err)

	assert.Contains(t, doc, "A body")
	assert.Contains(t, doc, "B body")
	assert.Contains(t, doc, "% [already included: a]")
}

func TestFlatten_NestedIncludePath(t *testing.T) {
	raw := tarGz(t, map[string]string{
		"ms.tex":             "\\documentclass{article}\n\\input{sections/intro}",
		"sections/intro.tex": "Nested intro.",
	})

	doc, err := Flatten(raw)
	require.NoError(t, err)
	assert.Contains(t, doc, "Nested intro.")
}

func TestPickMainFile(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name: "known filename wins over root marker",
			files: map[string]string{
				"other.tex": "\\documentclass{article}",
				"main.tex":  "no marker here",
			},
			want: "main.tex",
		},
		{
			name: "document root marker",
			files: map[string]string{
				"aux.tex":  "helper macros",
				"body.tex": "\\begin{document}content\\end{document}",
			},
			want: "body.tex",
		},
		{
			name: "first file fallback",
			files: map[string]string{
				"z.tex": "zzz",
				"a.tex": "aaa",
			},
			want: "a.tex",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickMainFile(tt.files))
		})
	}
}

func TestFlatten_ExpansionCap(t *testing.T) {
	// A file including itself indirectly many times must stop at the cap
	// rather than ballooning.
	files := map[string]string{
		"main.tex":  "\\documentclass{article}\n" + strings.Repeat("\\input{chunk}\n", 150),
		"chunk.tex": "chunk body",
	}
	raw := tarGz(t, files)

	doc, err := Flatten(raw)
	require.NoError(t, err)
	// Only the first expansion happens; the rest hit the already-included guard.
	assert.Equal(t, 1, strings.Count(doc, "chunk body"))
}

func TestFetchFlattened(t *testing.T) {
	raw := tarGz(t, map[string]string{
		"main.tex": "\\documentclass{article}\nFetched body.",
	})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2301.07041", r.URL.Path, "version suffix stripped before fetch")
		w.Write(raw)
	}))
	defer ts.Close()

	old := archiveBase
	archiveBase = ts.URL + "/"
	defer func() { archiveBase = old }()

	f := NewFetcher(types.SourceConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test/0.1"},
	})

	doc, err := f.FetchFlattened(context.Background(), "2301.07041v2")
	require.NoError(t, err)
	assert.Contains(t, doc, "Fetched body.")
}

func TestFetchFlattened_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	old := archiveBase
	archiveBase = ts.URL + "/"
	defer func() { archiveBase = old }()

	f := NewFetcher(types.SourceConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
	})

	_, err := f.FetchFlattened(context.Background(), "2301.99999")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
