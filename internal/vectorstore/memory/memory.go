package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"ragd/internal/domain"
)

// Store is an in-memory vector index using brute-force cosine similarity.
// It embeds chunk contents on insert via the injected embedder, so it can
// serve both offline runs and tests.
type Store struct {
	mu       sync.RWMutex
	embedder domain.Embedder
	chunks   []domain.Chunk
	vectors  [][]float64
}

func New(embedder domain.Embedder) *Store {
	return &Store{embedder: embedder}
}

// AddDocuments embeds and stores the chunks.
func (s *Store) AddDocuments(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		if ch.Metadata.Source == "" {
			return errors.New("chunk without source in metadata")
		}
		texts[i] = ch.Content
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search embeds the query and returns the k nearest chunks passing the
// option filters.
func (s *Store) Search(ctx context.Context, query string, k int, opts domain.SearchOptions) ([]domain.ScoredMatch, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SimilaritySearch(ctx, vec, k, opts)
}

// SimilaritySearch returns the k nearest chunks to the vector, filtered by
// the options before truncation so filtering never shrinks effective k.
func (s *Store) SimilaritySearch(_ context.Context, vector []float64, k int, opts domain.SearchOptions) ([]domain.ScoredMatch, error) {
	if k <= 0 {
		k = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := sourceSet(opts.FilterBySource)
	matches := make([]domain.ScoredMatch, 0, len(s.chunks))
	for i, ch := range s.chunks {
		if opts.UserID != "" && ch.Metadata.UploadedBy != "" && ch.Metadata.UploadedBy != opts.UserID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[ch.Metadata.Source]; !ok {
				continue
			}
		}
		score := cosine(s.vectors[i], vector)
		if score < opts.Threshold {
			continue
		}
		matches = append(matches, domain.ScoredMatch{Chunk: ch, Score: score, Distance: 1 - score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Stats reports chunk count and vector dimension.
func (s *Store) Stats(context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.IndexStats{Count: len(s.chunks)}
	if len(s.vectors) > 0 {
		stats.Dimension = len(s.vectors[0])
	}
	return stats, nil
}

// Clear drops everything. Used between ingest runs.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.vectors = nil
}

func sourceSet(sources []string) map[string]struct{} {
	if len(sources) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		m[s] = struct{}{}
	}
	return m
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
