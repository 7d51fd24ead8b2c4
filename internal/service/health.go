package service

import (
	"context"
	"fmt"

	"ragd/internal/domain"
	"ragd/internal/retriever"
)

// ComponentStatus reports one collaborator's reachability.
type ComponentStatus struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Health is the component-level status of the pipeline's collaborators.
type Health struct {
	VectorIndex   ComponentStatus `json:"vector_index"`
	Retrieval     ComponentStatus `json:"retrieval"`
	LanguageModel ComponentStatus `json:"language_model"`
}

// OK reports whether every component passed.
func (h Health) OK() bool {
	return h.VectorIndex.OK && h.Retrieval.OK && h.LanguageModel.OK
}

// HealthCheck probes the vector index, the retrieval path, and the language
// model with trivial requests. It mutates no persisted state; the model call
// goes through the shared rate limiter like any other.
func (s *Service) HealthCheck(ctx context.Context) Health {
	var h Health

	if stats, err := s.store.Stats(ctx); err != nil {
		h.VectorIndex = ComponentStatus{Detail: err.Error()}
	} else {
		h.VectorIndex = ComponentStatus{OK: true, Detail: fmt.Sprintf("%d vectors", stats.Count)}
	}

	if _, err := s.retriever.Retrieve(ctx, "health check", retriever.Options{K: 1, Threshold: -1}); err != nil {
		h.Retrieval = ComponentStatus{Detail: err.Error()}
	} else {
		h.Retrieval = ComponentStatus{OK: true}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		h.LanguageModel = ComponentStatus{Detail: err.Error()}
		return h
	}
	if _, err := s.llm.GenerateText(ctx, "Reply with the single word: ok", domain.GenerateOptions{MaxTokens: 8}); err != nil {
		h.LanguageModel = ComponentStatus{Detail: err.Error()}
	} else {
		h.LanguageModel = ComponentStatus{OK: true}
	}
	return h
}
