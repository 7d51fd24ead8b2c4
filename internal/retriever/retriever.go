package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// Strategy selects how candidate chunks are gathered for a query.
type Strategy string

const (
	StrategyDefault Strategy = "default"
	StrategyDiverse Strategy = "diverse"
	StrategyHybrid  Strategy = "hybrid"
)

const (
	DefaultK         = 5
	DefaultThreshold = 0.7

	// keywordPoolSize bounds the candidate pool scanned for keyword overlap
	// in hybrid retrieval. This is a deliberate approximation: the pool is
	// the first N similarity hits rather than a true inverted index.
	keywordPoolSize = 100

	// Hybrid fusion weights.
	vectorWeight          = 0.7
	vectorPositionWeight  = 0.3
	keywordWeight         = 0.3
	keywordPositionWeight = 0.2

	// Rerank blending: lexical overlap vs original similarity.
	rerankOverlapWeight  = 0.3
	rerankOriginalWeight = 0.7
)

// Options configure one retrieval call. Zero values fall back to defaults;
// a negative Threshold disables score filtering.
type Options struct {
	K              int
	Threshold      float64
	FilterBySource []string
	UserID         string
	Strategy       Strategy
	Rerank         bool
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.Strategy == "" {
		o.Strategy = StrategyDefault
	}
	return o
}

// Retriever gathers scored chunks from the vector index under one of
// several strategies. Index errors propagate unmodified; retries are the
// caller's concern.
type Retriever struct {
	store  domain.VectorStore
	scorer domain.Scorer
	logger *logrus.Logger
}

func New(store domain.VectorStore, scorer domain.Scorer, logger *logrus.Logger) *Retriever {
	if scorer == nil {
		scorer = TermOverlapScorer{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Retriever{store: store, scorer: scorer, logger: logger}
}

// Retrieve runs the configured strategy, applies rerank if requested, and
// returns at most K matches in descending score order.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]domain.ScoredMatch, error) {
	opts = opts.withDefaults()

	var (
		matches []domain.ScoredMatch
		err     error
	)
	switch opts.Strategy {
	case StrategyDefault:
		matches, err = r.retrieveDefault(ctx, query, opts)
	case StrategyDiverse:
		matches, err = r.retrieveDiverse(ctx, query, opts)
	case StrategyHybrid:
		matches, err = r.retrieveHybrid(ctx, query, opts)
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"strategy": opts.Strategy,
		"k":        opts.K,
		"matches":  len(matches),
	}).Debug("retrieval completed")
	return matches, nil
}

// retrieveDefault queries the index for K nearest neighbors, optionally
// reranks, then filters and truncates. Filters run after scoring and before
// truncation so they never inflate effective K.
func (r *Retriever) retrieveDefault(ctx context.Context, query string, opts Options) ([]domain.ScoredMatch, error) {
	matches, err := r.store.Search(ctx, query, opts.K, domain.SearchOptions{
		UserID:         opts.UserID,
		FilterBySource: opts.FilterBySource,
	})
	if err != nil {
		return nil, err
	}
	matches = filterMatches(matches, opts)
	if opts.Rerank {
		matches = r.rerank(query, matches)
	}
	if len(matches) > opts.K {
		matches = matches[:opts.K]
	}
	return matches, nil
}

// retrieveDiverse over-fetches 3K candidates and greedily picks them in
// descending score order while capping per-source picks at max(1, K/3). The
// cap is relaxed only once every source is exhausted up to it.
func (r *Retriever) retrieveDiverse(ctx context.Context, query string, opts Options) ([]domain.ScoredMatch, error) {
	wide := opts
	wide.K = opts.K * 3
	candidates, err := r.retrieveDefault(ctx, query, wide)
	if err != nil {
		return nil, err
	}

	perSourceCap := opts.K / 3
	if perSourceCap < 1 {
		perSourceCap = 1
	}

	perSource := make(map[string]int)
	taken := make([]bool, len(candidates))
	selected := make([]domain.ScoredMatch, 0, opts.K)

	for i, m := range candidates {
		if len(selected) >= opts.K {
			break
		}
		src := m.Chunk.Metadata.Source
		if perSource[src] >= perSourceCap {
			continue
		}
		perSource[src]++
		taken[i] = true
		selected = append(selected, m)
	}
	// Relax the cap: fill from the remaining candidates in score order.
	for i, m := range candidates {
		if len(selected) >= opts.K {
			break
		}
		if taken[i] {
			continue
		}
		selected = append(selected, m)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Score > selected[j].Score })
	return selected, nil
}

// retrieveHybrid fuses 2K vector hits with a keyword-overlap scan over a
// bounded candidate pool, merging by chunk ID with weighted scores plus
// positional bonuses, then filters and truncates to K.
func (r *Retriever) retrieveHybrid(ctx context.Context, query string, opts Options) ([]domain.ScoredMatch, error) {
	wide := opts
	wide.K = opts.K * 2
	wide.Rerank = false
	vector, err := r.retrieveDefault(ctx, query, wide)
	if err != nil {
		return nil, err
	}

	pool, err := r.store.Search(ctx, query, keywordPoolSize, domain.SearchOptions{
		UserID:         opts.UserID,
		FilterBySource: opts.FilterBySource,
	})
	if err != nil {
		return nil, err
	}

	type kwHit struct {
		score float64
		bonus float64
	}
	keyword := make(map[string]kwHit, len(pool))
	kept := 0
	for i, m := range pool {
		score := termOverlap(query, m.Chunk.Content)
		if score <= 0 {
			continue
		}
		keyword[m.Chunk.ID] = kwHit{
			score: score,
			bonus: positionBonus(i, len(pool)),
		}
		kept++
	}

	merged := make([]domain.ScoredMatch, 0, len(vector)+kept)
	seen := make(map[string]struct{}, len(vector))
	for i, m := range vector {
		combined := m.Score*vectorWeight + positionBonus(i, len(vector))*vectorPositionWeight
		if kw, ok := keyword[m.Chunk.ID]; ok {
			combined += kw.score*keywordWeight + kw.bonus*keywordPositionWeight
		}
		m.Score = combined
		merged = append(merged, m)
		seen[m.Chunk.ID] = struct{}{}
	}
	for _, m := range pool {
		if _, ok := seen[m.Chunk.ID]; ok {
			continue
		}
		kw, ok := keyword[m.Chunk.ID]
		if !ok {
			continue
		}
		m.Score = kw.score*keywordWeight + kw.bonus*keywordPositionWeight
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if opts.Rerank {
		merged = r.rerank(query, merged)
	}
	if len(merged) > opts.K {
		merged = merged[:opts.K]
	}
	return merged, nil
}

// rerank blends each match's score with the scorer's lexical relevance and
// re-sorts.
func (r *Retriever) rerank(query string, matches []domain.ScoredMatch) []domain.ScoredMatch {
	for i := range matches {
		overlap := r.scorer.Score(query, matches[i].Chunk)
		matches[i].Score = overlap*rerankOverlapWeight + matches[i].Score*rerankOriginalWeight
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

func filterMatches(matches []domain.ScoredMatch, opts Options) []domain.ScoredMatch {
	var allowed map[string]struct{}
	if len(opts.FilterBySource) > 0 {
		allowed = make(map[string]struct{}, len(opts.FilterBySource))
		for _, s := range opts.FilterBySource {
			allowed[s] = struct{}{}
		}
	}
	out := matches[:0]
	for _, m := range matches {
		if m.Score < opts.Threshold {
			continue
		}
		if opts.UserID != "" && m.Chunk.Metadata.UploadedBy != "" && m.Chunk.Metadata.UploadedBy != opts.UserID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[m.Chunk.Metadata.Source]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// positionBonus rewards earlier ranks in a candidate list, linearly from 1
// down to just above 0.
func positionBonus(rank, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1 - float64(rank)/float64(total)
}
