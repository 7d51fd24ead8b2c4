package domain

import "time"

// Metadata carries the provenance of a chunk. Source is the unit of
// attribution shown to end users and must be non-empty; everything else is
// optional. Fields the system does not model explicitly go into Extra.
type Metadata struct {
	Source      string            `json:"source"`
	Section     string            `json:"section,omitempty"`
	Title       string            `json:"title,omitempty"`
	Page        int               `json:"page,omitempty"`
	URL         string            `json:"url,omitempty"`
	Timestamp   time.Time         `json:"timestamp,omitzero"`
	UploadedBy  string            `json:"uploaded_by,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Chunk is a bounded, independently retrievable fragment of a source
// document. Chunks are immutable once created; the vector index owns them
// after ingestion.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// ScoredMatch pairs a chunk with its relevance score for one query.
// Scores are heuristically in [0,1] but not bounded after rerank blending.
type ScoredMatch struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// BuiltContext is the prompt-ready text block assembled from scored matches.
type BuiltContext struct {
	Text        string        `json:"text"`
	Sources     []string      `json:"sources"`
	Matches     []ScoredMatch `json:"matches"`
	TotalLength int           `json:"total_length"`
}

// AnswerResult is the terminal outcome of one query. Confidence is the score
// of the top-ranked match, or 0 when nothing was retrieved.
type AnswerResult struct {
	Answer     string        `json:"answer"`
	Sources    []string      `json:"sources"`
	ChunkCount int           `json:"chunks"`
	Confidence float64       `json:"confidence"`
	Matches    []ScoredMatch `json:"matches,omitempty"`
}

// ConversationTurn is one caller-supplied turn of prior conversation.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Document is a raw (content, metadata) pair supplied by a loader before
// chunking. Metadata.Source must be populated.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// SourceSet returns the de-duplicated sources of the matches in order of
// first appearance.
func SourceSet(matches []ScoredMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		src := m.Chunk.Metadata.Source
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}
