package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"ragd/internal/domain"
)

// IngestFailure records one document that could not be ingested. Failures
// never abort sibling documents.
type IngestFailure struct {
	Source string `json:"source"`
	Err    string `json:"error"`
}

// IngestResult summarizes one batch ingestion run.
type IngestResult struct {
	Documents   int             `json:"documents"`
	ChunksAdded int             `json:"chunks_added"`
	Failures    []IngestFailure `json:"failures,omitempty"`
}

// ProgressFunc is invoked after each index write with chunks written so far
// and the total to write.
type ProgressFunc func(done, total int)

// Ingest chunks the documents and writes them to the vector index in fixed
// batches. Per-document chunking failures and per-batch write failures are
// collected, not fatal.
func (s *Service) Ingest(ctx context.Context, docs []domain.Document, progress ProgressFunc) (IngestResult, error) {
	result := IngestResult{Documents: len(docs)}

	split := s.splitter.Chunk
	if s.sectionAware {
		split = s.splitter.ChunkWithSections
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		docChunks, err := split([]domain.Document{doc})
		if err != nil {
			result.Failures = append(result.Failures, IngestFailure{
				Source: doc.Metadata.Source,
				Err:    err.Error(),
			})
			continue
		}
		chunks = append(chunks, docChunks...)
	}

	total := len(chunks)
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		if err := s.store.AddDocuments(ctx, batch); err != nil {
			for _, c := range batch {
				result.Failures = append(result.Failures, IngestFailure{
					Source: c.Metadata.Source,
					Err:    err.Error(),
				})
			}
			s.logger.WithError(err).WithField("batch_size", len(batch)).Warn("index write failed")
		} else {
			result.ChunksAdded += len(batch)
		}
		if progress != nil {
			progress(end, total)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"documents": result.Documents,
		"chunks":    result.ChunksAdded,
		"failures":  len(result.Failures),
	}).Info("ingestion finished")
	return result, nil
}
