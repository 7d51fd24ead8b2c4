package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFromFiles_GlobRecursesAndFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# Readme")
	writeFile(t, dir, "notes.txt", "plain notes")
	writeFile(t, dir, "image.png", "binary")
	writeFile(t, dir, "sub/deep.md", "nested")

	l := New(nil)
	docs, err := l.FromFiles([]string{filepath.Join(dir, "**", "*")})
	require.NoError(t, err)

	sources := make(map[string]string)
	for _, d := range docs {
		sources[d.Metadata.Source] = d.Content
	}
	assert.Len(t, docs, 3)
	assert.Equal(t, "# Readme", sources["readme.md"])
	assert.Equal(t, "plain notes", sources["notes.txt"])
	assert.Equal(t, "nested", sources["deep.md"])
	assert.NotContains(t, sources, "image.png")
}

func TestFromFiles_LiteralPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "single.md", "only this")

	l := New(nil)
	docs, err := l.FromFiles([]string{path})
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "single.md", docs[0].Metadata.Source)
	assert.Equal(t, "single", docs[0].Metadata.Title)
	assert.False(t, docs[0].Metadata.Timestamp.IsZero())
}

func TestFromFiles_DeduplicatesAcrossPatterns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dup.md", "once")

	l := New(nil)
	docs, err := l.FromFiles([]string{path, path, filepath.Join(dir, "*.md")})
	require.NoError(t, err)

	count := 0
	for _, d := range docs {
		if d.Metadata.Source == "dup.md" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestFromFiles_SkipsUnreadable(t *testing.T) {
	l := New(nil)
	docs, err := l.FromFiles([]string{"/nonexistent/path/file.md"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFromText(t *testing.T) {
	l := New(nil)

	doc, err := l.FromText("hello", "pasted-note")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, "pasted-note", doc.Metadata.Source)
	assert.False(t, doc.Metadata.Timestamp.IsZero())

	_, err = l.FromText("hello", "  ")
	assert.Error(t, err)
}

func TestFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "remote content")
	}))
	defer srv.Close()

	l := New(nil)
	doc, err := l.FromURL(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "remote content", doc.Content)
	assert.Equal(t, srv.URL, doc.Metadata.Source)
	assert.Equal(t, srv.URL, doc.Metadata.URL)
}

func TestFromURL_RejectsNonText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x00, 0x01})
	}))
	defer srv.Close()

	l := New(nil)
	_, err := l.FromURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestFromURL_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := New(nil)
	_, err := l.FromURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
