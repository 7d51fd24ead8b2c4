package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// Loader turns files, URLs, and raw text into documents ready for chunking.
// Every produced document carries a populated Metadata.Source.
type Loader struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

func New(logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// supportedExtensions lists the plain-text formats ingestion accepts.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// FromFiles expands each pattern with doublestar globbing (so `docs/**/*.md`
// works) and loads every supported file exactly once. Unreadable files are
// skipped with a warning; an unmatched pattern is not an error.
func (l *Loader) FromFiles(patterns []string) ([]domain.Document, error) {
	seen := make(map[string]bool)
	var docs []domain.Document

	for _, pattern := range patterns {
		matches, err := expandPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("loader: bad pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true

			if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
				continue
			}
			doc, err := l.loadFile(path)
			if err != nil {
				l.logger.WithError(err).WithField("path", path).Warn("skipping unreadable file")
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func expandPattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	base, rest := doublestar.SplitPattern(pattern)
	rel, err := doublestar.Glob(os.DirFS(base), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		out = append(out, filepath.Join(base, r))
	}
	return out, nil
}

func (l *Loader) loadFile(path string) (domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		Content: string(raw),
		Metadata: domain.Metadata{
			Source:    filepath.Base(path),
			Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Timestamp: info.ModTime(),
		},
	}, nil
}

// FromText wraps raw text in a document. Source must be non-empty.
func (l *Loader) FromText(content, source string) (domain.Document, error) {
	if strings.TrimSpace(source) == "" {
		return domain.Document{}, fmt.Errorf("loader: source is required")
	}
	return domain.Document{
		Content: content,
		Metadata: domain.Metadata{
			Source:    source,
			Timestamp: time.Now(),
		},
	}, nil
}

// FromURL fetches a URL and wraps the body as one document, using the URL as
// source. Only textual content types are accepted.
func (l *Loader) FromURL(ctx context.Context, url string) (domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Document{}, fmt.Errorf("loader: build request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("loader: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.Document{}, fmt.Errorf("loader: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/") && !strings.Contains(contentType, "json") {
		return domain.Document{}, fmt.Errorf("loader: unsupported content type %q", contentType)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return domain.Document{}, fmt.Errorf("loader: read body: %w", err)
	}

	return domain.Document{
		Content: string(raw),
		Metadata: domain.Metadata{
			Source:    url,
			URL:       url,
			Timestamp: time.Now(),
		},
	}, nil
}
