package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"ragd/internal/domain"
)

var markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*$`)

type section struct {
	label string
	text  string
}

// chunkDocumentSections splits one document into heading-labeled sections
// and chunks each independently. Chunk indices run across the whole document
// so sibling counts stay per-document. Any panic during section detection
// falls back to plain chunking of the full document.
func (s *Splitter) chunkDocumentSections(doc domain.Document) (chunks []domain.Chunk, err error) {
	if doc.Metadata.Source == "" {
		return nil, fmt.Errorf("document has no source in metadata")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("source", doc.Metadata.Source).
				Warnf("section chunking failed (%v), falling back to plain", r)
			chunks, err = s.chunkDocument(doc, "")
		}
	}()

	sections := splitSections(doc.Content, s.sectionLabel)
	if len(sections) == 0 {
		return s.chunkDocument(doc, "")
	}

	type piece struct {
		text  string
		label string
	}
	var pieces []piece
	for _, sec := range sections {
		if strings.TrimSpace(sec.text) == "" {
			continue
		}
		for _, text := range s.split(sec.text) {
			pieces = append(pieces, piece{text: text, label: sec.label})
		}
	}

	chunks = make([]domain.Chunk, 0, len(pieces))
	for i, p := range pieces {
		meta := doc.Metadata
		meta.ChunkIndex = i
		meta.TotalChunks = len(pieces)
		meta.Section = p.label
		if meta.Extra == nil {
			meta.Extra = map[string]string{}
		} else {
			meta.Extra = cloneExtra(meta.Extra)
		}
		meta.Extra["original_length"] = fmt.Sprint(len(doc.Content))
		meta.Extra["chunk_length"] = fmt.Sprint(len(p.text))
		chunks = append(chunks, domain.Chunk{
			ID:       uuid.NewString(),
			Content:  p.text,
			Metadata: meta,
		})
	}
	return chunks, nil
}

// splitSections partitions content at detected headings. Text before the
// first heading gets defaultLabel.
func splitSections(content, defaultLabel string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	label := defaultLabel
	var buf []string

	flush := func() {
		if len(buf) > 0 {
			sections = append(sections, section{label: label, text: strings.Join(buf, "\n")})
			buf = nil
		}
	}

	for i, line := range lines {
		if h, ok := headingLabel(line, neighbor(lines, i-1), neighbor(lines, i+1)); ok {
			flush()
			label = h
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

func neighbor(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

// headingLabel applies the heading heuristic: a markdown heading, a
// capitalized line ending in ":", or a short capitalized line standing alone
// between blank lines.
func headingLabel(line, prev, next string) (string, bool) {
	if m := markdownHeadingRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !startsUpper(trimmed) || len(trimmed) > 80 {
		return "", false
	}
	if strings.HasSuffix(trimmed, ":") {
		return strings.TrimSuffix(trimmed, ":"), true
	}
	if len(trimmed) <= 60 &&
		strings.TrimSpace(prev) == "" && strings.TrimSpace(next) == "" &&
		!strings.ContainsAny(trimmed, ".!?,;") {
		return trimmed, true
	}
	return "", false
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
