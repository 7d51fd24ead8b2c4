package domain

import "context"

// SearchOptions narrow a vector index search. Threshold drops matches whose
// score is below it; UserID and FilterBySource restrict by provenance.
type SearchOptions struct {
	UserID         string
	FilterBySource []string
	Threshold      float64
}

// IndexStats describes the state of a vector index.
type IndexStats struct {
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

// VectorStore persists chunk vectors and answers nearest-neighbor queries.
// Implementations are externally synchronized services; the core issues
// requests but owns no lock over them.
type VectorStore interface {
	AddDocuments(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, query string, k int, opts SearchOptions) ([]ScoredMatch, error)
	SimilaritySearch(ctx context.Context, vector []float64, k int, opts SearchOptions) ([]ScoredMatch, error)
	Stats(ctx context.Context) (IndexStats, error)
}

// Embedder converts text into numeric vectors for similarity search.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// GenerateOptions tune a language model call. Zero values mean provider
// defaults.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLM is the language-model collaborator. GenerateStream returns the content
// channel and an error channel; generation-time failures arrive on the error
// channel after the content channel closes.
type LLM interface {
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error)
	GenerateWithHistory(ctx context.Context, turns []ConversationTurn, opts GenerateOptions) (string, error)
}

// Scorer rates a chunk's relevance to a query. Used for rerank blending so
// the heuristic can be swapped without touching retrieval control flow.
type Scorer interface {
	Score(query string, chunk Chunk) float64
}
