package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

func doc(content string) domain.Document {
	return domain.Document{
		Content:  content,
		Metadata: domain.Metadata{Source: "test.txt"},
	}
}

func TestChunk_ShortDocument(t *testing.T) {
	s := New(1000, 200, nil)

	chunks, err := s.Chunk([]domain.Document{doc("A1. A2. A3.")})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A1. A2. A3.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, chunks[0].Metadata.TotalChunks)
	assert.Equal(t, "test.txt", chunks[0].Metadata.Source)
}

func TestChunk_EmptyDocument(t *testing.T) {
	s := New(1000, 200, nil)

	chunks, err := s.Chunk([]domain.Document{doc("")})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_MissingSource(t *testing.T) {
	s := New(1000, 200, nil)

	_, err := s.Chunk([]domain.Document{{Content: "text"}})

	assert.Error(t, err)
}

func TestChunk_RespectsSizeBound(t *testing.T) {
	s := New(100, 20, nil)
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("some words of ordinary prose that split cleanly. ")
	}

	chunks, err := s.Chunk([]domain.Document{doc(b.String())})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 100)
	}
}

func TestChunk_SizeBoundHeldAfterOverlapCarry(t *testing.T) {
	// Several short lines followed by one long line: the carried overlap
	// plus the long line would exceed the bound unless the overlap yields.
	s := New(100, 20, nil)
	var b strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "line-%d abcdef\n", i)
	}
	b.WriteString(strings.Repeat("z", 90))

	chunks, err := s.Chunk([]domain.Document{doc(b.String())})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 100)
	}
	assert.Equal(t, b.String(), reconstruct(chunks))
}

func TestChunk_IndivisibleTokenSplitByRunes(t *testing.T) {
	s := New(50, 10, nil)
	long := strings.Repeat("x", 130) // no separators at all

	chunks, err := s.Chunk([]domain.Document{doc(long)})

	require.NoError(t, err)
	var joined strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 50)
		joined.WriteString(ch.Content)
	}
	// Rune-level pieces are larger than the overlap budget, so nothing is
	// carried over and plain concatenation restores the input.
	assert.Equal(t, long, joined.String())
}

func TestChunk_CarriedOverlap(t *testing.T) {
	s := New(50, 15, nil)
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa quebec romeo sierra tango"

	chunks, err := s.Chunk([]domain.Document{doc(text)})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		ov := overlapLen(chunks[i-1].Content, chunks[i].Content)
		assert.Greater(t, ov, 0, "chunk %d should start with carried overlap", i)
		assert.LessOrEqual(t, ov, 15)
	}
	assert.Equal(t, text, reconstruct(chunks))
}

func TestChunk_OverlapAndCoverage(t *testing.T) {
	s := New(120, 30, nil)
	text := "First paragraph with enough words to matter.\n\n" +
		"Second paragraph follows with more content here.\n\n" +
		"Third paragraph keeps going so we cross the chunk size for sure.\n\n" +
		"Fourth paragraph closes the document out completely."

	chunks, err := s.Chunk([]domain.Document{doc(text)})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share an overlap region of at most the configured size.
	for i := 1; i < len(chunks); i++ {
		ov := overlapLen(chunks[i-1].Content, chunks[i].Content)
		assert.LessOrEqual(t, ov, 30, "chunk %d overlap too large", i)
	}

	// Removing the overlap and concatenating restores the original exactly.
	assert.Equal(t, text, reconstruct(chunks))

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, len(chunks), ch.Metadata.TotalChunks)
	}
}

func TestChunkWithSections_Headings(t *testing.T) {
	s := New(1000, 200, nil)
	text := "Intro text before any heading.\n" +
		"# Installation\n" +
		"Run the installer.\n" +
		"## Requirements\n" +
		"A computer.\n" +
		"Troubleshooting:\n" +
		"Turn it off and on again."

	chunks, err := s.ChunkWithSections([]domain.Document{doc(text)})

	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Introduction", chunks[0].Metadata.Section)
	assert.Equal(t, "Installation", chunks[1].Metadata.Section)
	assert.Equal(t, "Requirements", chunks[2].Metadata.Section)
	assert.Equal(t, "Troubleshooting", chunks[3].Metadata.Section)

	// Indices run across the document, not per section.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, 4, ch.Metadata.TotalChunks)
	}
}

func TestChunkWithSections_NoHeadingsUsesDefaultLabel(t *testing.T) {
	s := New(1000, 200, nil)

	chunks, err := s.ChunkWithSections([]domain.Document{doc("just some plain prose. nothing else.")})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Introduction", chunks[0].Metadata.Section)
}

func TestChunk_InheritsMetadata(t *testing.T) {
	s := New(1000, 200, nil)
	d := domain.Document{
		Content: "short text",
		Metadata: domain.Metadata{
			Source:     "handbook.md",
			Title:      "Handbook",
			UploadedBy: "user-7",
			Extra:      map[string]string{"team": "platform"},
		},
	}

	chunks, err := s.Chunk([]domain.Document{d})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	m := chunks[0].Metadata
	assert.Equal(t, "handbook.md", m.Source)
	assert.Equal(t, "Handbook", m.Title)
	assert.Equal(t, "user-7", m.UploadedBy)
	assert.Equal(t, "platform", m.Extra["team"])
	assert.Equal(t, "10", m.Extra["chunk_length"])
	assert.NotEmpty(t, chunks[0].ID)
}

// overlapLen returns the length of the longest suffix of a that is a prefix
// of b.
func overlapLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for l := n; l > 0; l-- {
		if a[len(a)-l:] == b[:l] {
			return l
		}
	}
	return 0
}

func reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Content)
			continue
		}
		ov := overlapLen(chunks[i-1].Content, ch.Content)
		b.WriteString(ch.Content[ov:])
	}
	return b.String()
}
