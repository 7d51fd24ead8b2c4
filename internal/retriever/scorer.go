package retriever

import (
	"strings"

	"ragd/internal/domain"
)

// TermOverlapScorer scores a chunk by the fraction of query terms present
// verbatim in its text. Terms are lower-cased and whitespace-tokenized. It
// is the default rerank heuristic; swap in another Scorer for anything
// smarter.
type TermOverlapScorer struct{}

func (TermOverlapScorer) Score(query string, chunk domain.Chunk) float64 {
	return termOverlap(query, chunk.Content)
}

// termOverlap returns |query terms found in text| / |query terms|.
func termOverlap(query, text string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for term := range terms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

func queryTerms(query string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(query))
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		terms[f] = struct{}{}
	}
	return terms
}
