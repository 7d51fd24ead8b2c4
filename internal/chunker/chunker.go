package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, space, then runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	// DefaultSectionLabel names the text before the first detected heading.
	DefaultSectionLabel = "Introduction"
)

// Splitter turns raw documents into bounded, overlapping chunks. Splitting
// recurses through the separator list so that no chunk exceeds ChunkSize
// characters unless a single indivisible token is longer than that; each
// chunk overlaps the previous by at most ChunkOverlap characters, aligned to
// split boundaries.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	sectionLabel string
	logger       *logrus.Logger
}

// New creates a Splitter. Non-positive size/overlap fall back to defaults;
// overlap is clamped below size.
func New(chunkSize, chunkOverlap int, logger *logrus.Logger) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
		sectionLabel: DefaultSectionLabel,
		logger:       logger,
	}
}

// Chunk splits each document with the plain recursive algorithm. Empty
// documents yield zero chunks; documents shorter than the chunk size yield
// exactly one.
func (s *Splitter) Chunk(docs []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, doc := range docs {
		chunks, err := s.chunkDocument(doc, "")
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// ChunkWithSections partitions each document by detected headings and chunks
// every section independently, labeling its chunks with the heading. If
// section detection fails for a document, the whole document is chunked
// plainly instead so no content is lost.
func (s *Splitter) ChunkWithSections(docs []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, doc := range docs {
		chunks, err := s.chunkDocumentSections(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (s *Splitter) chunkDocument(doc domain.Document, section string) ([]domain.Chunk, error) {
	if doc.Metadata.Source == "" {
		return nil, fmt.Errorf("document has no source in metadata")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	texts := s.split(doc.Content)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		meta := doc.Metadata
		meta.ChunkIndex = i
		meta.TotalChunks = len(texts)
		if section != "" {
			meta.Section = section
		}
		if meta.Extra == nil {
			meta.Extra = map[string]string{}
		} else {
			meta.Extra = cloneExtra(meta.Extra)
		}
		meta.Extra["original_length"] = fmt.Sprint(len(doc.Content))
		meta.Extra["chunk_length"] = fmt.Sprint(len(text))
		chunks = append(chunks, domain.Chunk{
			ID:       uuid.NewString(),
			Content:  text,
			Metadata: meta,
		})
	}
	return chunks, nil
}

// split returns the chunk texts for content. Concatenating the returned
// texts and removing each chunk's leading overlap reconstructs content
// exactly: pieces keep their separators and overlaps are whole pieces
// carried over from the previous chunk.
func (s *Splitter) split(content string) []string {
	pieces := s.atomize(content, s.separators)
	var chunks []string
	var cur []string
	curLen := 0
	for _, p := range pieces {
		if curLen > 0 && curLen+len(p) > s.chunkSize {
			chunks = append(chunks, strings.Join(cur, ""))
			cur, curLen = s.carryOverlap(cur)
			// The carried overlap must leave room for the piece that forced
			// the flush; the size bound wins over the overlap.
			for len(cur) > 0 && curLen+len(p) > s.chunkSize {
				curLen -= len(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		curLen += len(p)
	}
	if curLen > 0 {
		chunks = append(chunks, strings.Join(cur, ""))
	}
	return chunks
}

// atomize recursively splits text into pieces no longer than the chunk size,
// preserving separators so concatenation is lossless.
func (s *Splitter) atomize(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 || seps[0] == "" {
		return splitRunes(text, s.chunkSize)
	}
	parts := strings.SplitAfter(text, seps[0])
	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) > s.chunkSize {
			out = append(out, s.atomize(part, seps[1:])...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// carryOverlap keeps the trailing pieces of the finished chunk that fit in
// the overlap budget, so the next chunk starts with them.
func (s *Splitter) carryOverlap(cur []string) ([]string, int) {
	keepLen := 0
	start := len(cur)
	for i := len(cur) - 1; i >= 0; i-- {
		if keepLen+len(cur[i]) > s.chunkOverlap {
			break
		}
		keepLen += len(cur[i])
		start = i
	}
	kept := make([]string, len(cur)-start)
	copy(kept, cur[start:])
	return kept, keepLen
}

func splitRunes(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func cloneExtra(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
